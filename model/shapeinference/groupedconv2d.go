package shapeinference

import (
	"math"
	"slices"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/model/shapes"
	"github.com/pkg/errors"
)

// Positions of the GroupedConv2D inputs common to both padding forms.
const (
	GroupedConv2DInput  = 0
	GroupedConv2DFilter = 1
	GroupedConv2DBias   = 2
)

// GroupedConv2DParams holds the scalar parameters of a GroupedConv2D operation.
type GroupedConv2DParams struct {
	// PaddingScheme is PaddingExplicit when the four paddings are given explicitly.
	PaddingScheme                                        optypes.PaddingScheme
	PaddingLeft, PaddingRight, PaddingTop, PaddingBottom int

	StrideW, StrideH     int
	DilationW, DilationH int
	NumGroups            int
	Activation           optypes.Activation

	// NCHW is the layout flag: input and output are [batch, channels, height, width] if true,
	// [batch, height, width, channels] otherwise.
	NCHW bool
}

// Names of the scalar inputs, for both padding forms, in order.
var (
	groupedConv2DExplicitScalars = []string{"padding_left", "padding_right", "padding_top", "padding_bottom",
		"stride_width", "stride_height", "num_groups", "activation", "layout", "dilation_width", "dilation_height"}
	groupedConv2DImplicitScalars = []string{"padding_scheme",
		"stride_width", "stride_height", "num_groups", "activation", "layout", "dilation_width", "dilation_height"}
)

// isExplicitGroupedConv2D returns whether the number of inputs corresponds to the explicit padding form.
func isExplicitGroupedConv2D(numInputs int) (bool, error) {
	switch numInputs {
	case 12, 14:
		return true, nil
	case 9, 11:
		return false, nil
	}
	return false, errors.Errorf("GroupedConv2D takes 9 or 11 (implicit padding) or 12 or 14 (explicit padding) inputs, got %d", numInputs)
}

// DecodeGroupedConv2D retrieves the scalar parameters of a GroupedConv2D operation.
// The values of all scalar operands must be known.
func DecodeGroupedConv2D(inputs []Operand) (params GroupedConv2DParams, err error) {
	var allKnown bool
	params, allKnown, err = decodeGroupedConv2D(inputs)
	if err != nil {
		return
	}
	if !allKnown {
		err = errors.New("GroupedConv2D scalar parameters must have known values")
	}
	return
}

// decodeGroupedConv2D checks the dtypes of the scalar parameters and decodes the known ones.
func decodeGroupedConv2D(inputs []Operand) (params GroupedConv2DParams, allKnown bool, err error) {
	explicit, err := isExplicitGroupedConv2D(len(inputs))
	if err != nil {
		return
	}
	names := groupedConv2DImplicitScalars
	if explicit {
		names = groupedConv2DExplicitScalars
	}
	params.DilationW, params.DilationH = 1, 1
	ints := map[string]*int{
		"padding_left":    &params.PaddingLeft,
		"padding_right":   &params.PaddingRight,
		"padding_top":     &params.PaddingTop,
		"padding_bottom":  &params.PaddingBottom,
		"stride_width":    &params.StrideW,
		"stride_height":   &params.StrideH,
		"num_groups":      &params.NumGroups,
		"dilation_width":  &params.DilationW,
		"dilation_height": &params.DilationH,
	}
	allKnown = true
	schemeFound := false
	for ii, operand := range inputs[GroupedConv2DBias+1:] {
		name := names[ii]
		var found bool
		switch name {
		case "layout":
			params.NCHW, found, err = scalarBool(operand, name)
		case "activation":
			var v int
			v, found, err = scalarInt32(operand, name)
			params.Activation = optypes.Activation(v)
		case "padding_scheme":
			var v int
			v, found, err = scalarInt32(operand, name)
			params.PaddingScheme = optypes.PaddingScheme(v)
			schemeFound = found
		default:
			*ints[name], found, err = scalarInt32(operand, name)
		}
		if err != nil {
			err = errors.WithMessagef(err, "GroupedConv2D input #%d", GroupedConv2DBias+1+ii)
			return
		}
		allKnown = allKnown && found
	}
	if explicit {
		params.PaddingScheme = optypes.PaddingExplicit
	} else if schemeFound && params.PaddingScheme != optypes.PaddingSame && params.PaddingScheme != optypes.PaddingValid {
		err = errors.Errorf("GroupedConv2D: invalid padding scheme %d", int32(params.PaddingScheme))
	}
	return
}

// Validate checks the ranges of the parameters.
func (p GroupedConv2DParams) Validate() error {
	if p.PaddingScheme != optypes.PaddingExplicit && p.PaddingScheme != optypes.PaddingSame && p.PaddingScheme != optypes.PaddingValid {
		return errors.Errorf("GroupedConv2D: invalid padding scheme %d", int32(p.PaddingScheme))
	}
	if p.PaddingLeft < 0 || p.PaddingRight < 0 || p.PaddingTop < 0 || p.PaddingBottom < 0 {
		return errors.Errorf("GroupedConv2D: paddings must be >= 0, got left=%d, right=%d, top=%d, bottom=%d",
			p.PaddingLeft, p.PaddingRight, p.PaddingTop, p.PaddingBottom)
	}
	if p.StrideW < 1 || p.StrideH < 1 {
		return errors.Errorf("GroupedConv2D: strides must be >= 1, got width=%d, height=%d", p.StrideW, p.StrideH)
	}
	if p.DilationW < 1 || p.DilationH < 1 {
		return errors.Errorf("GroupedConv2D: dilations must be >= 1, got width=%d, height=%d", p.DilationW, p.DilationH)
	}
	if p.NumGroups < 1 {
		return errors.Errorf("GroupedConv2D: num_groups must be >= 1, got %d", p.NumGroups)
	}
	if !p.Activation.IsValid() {
		return errors.Errorf("GroupedConv2D: invalid activation %s", p.Activation)
	}
	return nil
}

// Conv2DGeometry holds the sizes of a 2D convolution, independent of the layout.
type Conv2DGeometry struct {
	Batches                                int
	InHeight, InWidth, InChannels          int
	FilterHeight, FilterWidth              int
	OutHeight, OutWidth, OutChannels       int
	PadTop, PadBottom, PadLeft, PadRight   int
	StrideH, StrideW, DilationH, DilationW int
	NumGroups                              int
	GroupInChannels, GroupOutChannels      int
	NCHW                                   bool
}

// OutputDimensions returns the output dimensions in the layout of the operation.
func (g Conv2DGeometry) OutputDimensions() []int {
	if g.NCHW {
		return []int{g.Batches, g.OutChannels, g.OutHeight, g.OutWidth}
	}
	return []int{g.Batches, g.OutHeight, g.OutWidth, g.OutChannels}
}

// ExplicitPadding returns the head and tail padding of one spatial axis for an implicit padding scheme.
func ExplicitPadding(in, filter, stride, dilation int, scheme optypes.PaddingScheme) (head, tail int) {
	if scheme != optypes.PaddingSame {
		return 0, 0
	}
	effectiveFilter := (filter-1)*dilation + 1
	out := (in + stride - 1) / stride
	total := (out-1)*stride + effectiveFilter - in
	if total <= 0 {
		return 0, 0
	}
	head = total / 2
	return head, total - head
}

// OutputSize returns the size of one spatial axis of the output, or a value <= 0 if the
// (padded) input is smaller than the filter.
func OutputSize(in, filter, stride, dilation, head, tail int) int {
	effectiveFilter := (filter-1)*dilation + 1
	padded := in + head + tail
	if padded < effectiveFilter {
		return 0
	}
	return (padded-effectiveFilter)/stride + 1
}

// Geometry resolves the sizes of the convolution, given the fully specified input and filter dimensions.
// The filter is laid out as [outChannels, filterHeight, filterWidth, inChannels/numGroups].
func (p GroupedConv2DParams) Geometry(inputDims, filterDims []int) (g Conv2DGeometry, err error) {
	if len(inputDims) != 4 || len(filterDims) != 4 {
		return g, errors.Errorf("GroupedConv2D: input and filter must have rank 4, got input %v and filter %v", inputDims, filterDims)
	}
	g.NCHW = p.NCHW
	g.Batches = inputDims[0]
	if p.NCHW {
		g.InChannels, g.InHeight, g.InWidth = inputDims[1], inputDims[2], inputDims[3]
	} else {
		g.InHeight, g.InWidth, g.InChannels = inputDims[1], inputDims[2], inputDims[3]
	}
	g.OutChannels, g.FilterHeight, g.FilterWidth, g.GroupInChannels = filterDims[0], filterDims[1], filterDims[2], filterDims[3]
	g.StrideH, g.StrideW, g.DilationH, g.DilationW = p.StrideH, p.StrideW, p.DilationH, p.DilationW
	g.NumGroups = p.NumGroups

	if g.InChannels%p.NumGroups != 0 {
		return g, errors.Errorf("GroupedConv2D: input channels (%d) must be divisible by num_groups (%d)", g.InChannels, p.NumGroups)
	}
	if g.OutChannels%p.NumGroups != 0 {
		return g, errors.Errorf("GroupedConv2D: output channels (%d) must be divisible by num_groups (%d)", g.OutChannels, p.NumGroups)
	}
	if g.GroupInChannels*p.NumGroups != g.InChannels {
		return g, errors.Errorf("GroupedConv2D: filter depth (%d) times num_groups (%d) must equal the input channels (%d)",
			g.GroupInChannels, p.NumGroups, g.InChannels)
	}
	g.GroupOutChannels = g.OutChannels / p.NumGroups

	if p.PaddingScheme == optypes.PaddingExplicit {
		g.PadTop, g.PadBottom, g.PadLeft, g.PadRight = p.PaddingTop, p.PaddingBottom, p.PaddingLeft, p.PaddingRight
	} else {
		g.PadTop, g.PadBottom = ExplicitPadding(g.InHeight, g.FilterHeight, p.StrideH, p.DilationH, p.PaddingScheme)
		g.PadLeft, g.PadRight = ExplicitPadding(g.InWidth, g.FilterWidth, p.StrideW, p.DilationW, p.PaddingScheme)
	}
	g.OutHeight = OutputSize(g.InHeight, g.FilterHeight, p.StrideH, p.DilationH, g.PadTop, g.PadBottom)
	g.OutWidth = OutputSize(g.InWidth, g.FilterWidth, p.StrideW, p.DilationW, g.PadLeft, g.PadRight)
	if g.OutHeight <= 0 || g.OutWidth <= 0 {
		return g, errors.Errorf("GroupedConv2D: filter %dx%d doesn't fit the padded input %dx%d",
			g.FilterHeight, g.FilterWidth, g.InHeight+g.PadTop+g.PadBottom, g.InWidth+g.PadLeft+g.PadRight)
	}
	return g, nil
}

// biasScaleTolerance is the relative tolerance accepted between the bias scale and inputScale*filterScale.
const biasScaleTolerance = 1e-6

// GroupedConv2D validates the operands of a GroupedConv2D operation and returns the shape of its output.
//
// If all scalar parameters are known and the input and filter shapes are fully specified, the output
// shape is inferred and checked against the declared one (which may have unspecified dimensions).
// Otherwise, only dtypes and ranks are checked, and the declared output shape is returned.
func GroupedConv2D(inputs []Operand, output Operand) (shapes.Shape, error) {
	if _, err := isExplicitGroupedConv2D(len(inputs)); err != nil {
		return shapes.Invalid(), err
	}
	input, filter, bias := inputs[GroupedConv2DInput], inputs[GroupedConv2DFilter], inputs[GroupedConv2DBias]
	if err := checkGroupedConv2DTypes(input, filter, bias, output); err != nil {
		return shapes.Invalid(), err
	}
	params, allKnown, err := decodeGroupedConv2D(inputs)
	if err != nil {
		return shapes.Invalid(), err
	}
	if !allKnown || !input.Shape.IsFullySpecified() || !filter.Shape.IsFullySpecified() {
		return output.Shape, nil
	}
	if err = params.Validate(); err != nil {
		return shapes.Invalid(), err
	}
	g, err := params.Geometry(input.Shape.Dimensions, filter.Shape.Dimensions)
	if err != nil {
		return shapes.Invalid(), err
	}
	if bias.Shape.IsFullySpecified() && bias.Shape.Dimensions[0] != g.OutChannels {
		return shapes.Invalid(), errors.Errorf("GroupedConv2D: bias has %d elements, but there are %d output channels",
			bias.Shape.Dimensions[0], g.OutChannels)
	}
	if filter.Channel != nil && len(filter.Channel.Scales) != g.OutChannels {
		return shapes.Invalid(), errors.Errorf("GroupedConv2D: filter has %d per-channel scales, but there are %d output channels",
			len(filter.Channel.Scales), g.OutChannels)
	}
	inferred := shapes.Make(output.Shape.DType, g.OutputDimensions()...)
	if !output.Shape.Compatible(inferred) {
		return shapes.Invalid(), errors.Errorf("GroupedConv2D: declared output shape %s doesn't match inferred shape %s",
			output.Shape, inferred)
	}
	return inferred, nil
}

// checkGroupedConv2DTypes validates dtypes, ranks and quantization of the tensor operands.
func checkGroupedConv2DTypes(input, filter, bias, output Operand) error {
	inputDType := input.Shape.DType
	if !slices.Contains([]dtypes.DType{dtypes.TensorFloat32, dtypes.TensorFloat16, dtypes.TensorQuant8Asymm}, inputDType) {
		return errors.Errorf("GroupedConv2D: unsupported input dtype %s", inputDType)
	}
	if output.Shape.DType != inputDType {
		return errors.Errorf("GroupedConv2D: output dtype %s must match the input dtype %s", output.Shape.DType, inputDType)
	}
	for _, check := range []struct {
		name    string
		operand Operand
		rank    int
	}{{"input", input, 4}, {"filter", filter, 4}, {"bias", bias, 1}, {"output", output, 4}} {
		if rank := check.operand.Shape.Rank(); rank != 0 && rank != check.rank {
			return errors.Errorf("GroupedConv2D: %s must have rank %d, got shape %s", check.name, check.rank, check.operand.Shape)
		}
	}
	if filter.Shape.Rank() == 0 || bias.Shape.Rank() == 0 {
		return errors.New("GroupedConv2D: filter and bias must have known ranks")
	}

	if inputDType.IsFloat() {
		if filter.Shape.DType != inputDType || bias.Shape.DType != inputDType {
			return errors.Errorf("GroupedConv2D: filter (%s) and bias (%s) dtypes must match the input dtype %s",
				filter.Shape.DType, bias.Shape.DType, inputDType)
		}
		return nil
	}

	// Quantized input.
	if bias.Shape.DType != dtypes.TensorInt32 {
		return errors.Errorf("GroupedConv2D: bias of a quantized convolution must be %s, got %s", dtypes.TensorInt32, bias.Shape.DType)
	}
	switch filter.Shape.DType {
	case dtypes.TensorQuant8Asymm:
		want := float64(input.Scale) * float64(filter.Scale)
		if math.Abs(float64(bias.Scale)-want) > biasScaleTolerance*math.Max(1, want) {
			return errors.Errorf("GroupedConv2D: bias scale %g must equal input scale * filter scale = %g", bias.Scale, want)
		}
	case dtypes.TensorQuant8SymmPerChannel:
		if filter.Channel == nil {
			return errors.New("GroupedConv2D: per-channel filter is missing its channel quantization parameters")
		}
		if filter.Channel.ChannelDim != 0 {
			return errors.Errorf("GroupedConv2D: per-channel filter must be quantized along axis 0, got axis %d", filter.Channel.ChannelDim)
		}
		if bias.Scale != 0 {
			return errors.Errorf("GroupedConv2D: bias of a per-channel convolution must have scale 0 (derived per channel), got %g", bias.Scale)
		}
	default:
		return errors.Errorf("GroupedConv2D: filter of a quantized convolution must be %s or %s, got %s",
			dtypes.TensorQuant8Asymm, dtypes.TensorQuant8SymmPerChannel, filter.Shape.DType)
	}
	return nil
}
