package testgen

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// EmitGo writes a Go source file for package pkg with, for each case, the functions
//
//	func CreateModel_<name>(model *nnmodel.Model)
//	func is_ignored_<name>(i int) bool
//
// The emitted CreateModel functions are equivalent to Case.CreateModel on a *model.Model.
func EmitGo(w io.Writer, pkg string, cases []*Case) error {
	if !token.IsIdentifier(pkg) {
		return errors.Errorf("invalid package name %q", pkg)
	}
	data := emitFile{Package: pkg}
	for _, c := range cases {
		if !token.IsIdentifier("CreateModel_" + c.Name) {
			return errors.Errorf("case name %q can't be used in a Go identifier", c.Name)
		}
		ec, err := newEmitCase(c)
		if err != nil {
			return errors.WithMessagef(err, "emitting case %q", c.Name)
		}
		data.UsesFloat16 = data.UsesFloat16 || ec.usesFloat16
		data.Cases = append(data.Cases, ec)
	}

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, data); err != nil {
		return errors.Wrap(err, "executing template")
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "formatting generated source")
	}
	_, err = w.Write(src)
	return errors.Wrap(err, "writing generated source")
}

type emitFile struct {
	Package     string
	UsesFloat16 bool
	Cases       []*emitCase
}

type emitCase struct {
	Name           string
	Types          []string
	Operands       []emitOperand
	OpType         string
	OpInputs       string
	ModelInputs    string
	Outputs        string
	Relaxed        bool
	IgnoredIndices []int

	usesFloat16 bool
}

type emitOperand struct {
	Var, TypeVar string

	// Value is the Go slice literal of constants, empty otherwise.
	Value string
}

func newEmitCase(c *Case) (*emitCase, error) {
	ec := &emitCase{
		Name:    c.Name,
		OpType:  "optypes." + c.OpType.String(),
		Relaxed: c.Relaxed,
	}
	for i := range c.ignored {
		if c.ignored[i] {
			ec.IgnoredIndices = append(ec.IgnoredIndices, i)
		}
	}
	slices.Sort(ec.IgnoredIndices)

	typeVars := make(map[string]string)
	used := map[string]bool{"model": true}
	var opInputs, modelInputs, outputs []string
	for i, o := range c.Operands {
		typeExpr := operandTypeExpr(o.Type)
		typeVar, found := typeVars[typeExpr]
		if !found {
			typeVar = fmt.Sprintf("type%d", len(ec.Types))
			typeVars[typeExpr] = typeVar
			ec.Types = append(ec.Types, typeExpr)
		}

		name := o.Name
		if !token.IsIdentifier(name) || token.IsKeyword(name) || used[name] || strings.HasPrefix(name, "type") {
			name = fmt.Sprintf("operand%d", i)
		}
		used[name] = true
		eo := emitOperand{Var: name, TypeVar: typeVar}
		if o.Lifetime == LifetimeConstant {
			literal, err := sliceLiteral(o.Type.DType, o.Value)
			if err != nil {
				return nil, errors.WithMessagef(err, "value of operand %q", o.Name)
			}
			eo.Value = literal
			ec.usesFloat16 = ec.usesFloat16 || o.Type.DType == dtypes.TensorFloat16
		}
		ec.Operands = append(ec.Operands, eo)

		switch o.Lifetime {
		case LifetimeOutput:
			outputs = append(outputs, name)
		case LifetimeInput:
			modelInputs = append(modelInputs, name)
			opInputs = append(opInputs, name)
		default:
			opInputs = append(opInputs, name)
		}
	}
	ec.OpInputs = strings.Join(opInputs, ", ")
	ec.ModelInputs = strings.Join(modelInputs, ", ")
	ec.Outputs = strings.Join(outputs, ", ")
	return ec, nil
}

// operandTypeExpr returns the Go expression that creates the operand type.
func operandTypeExpr(t model.OperandType) string {
	var dims string
	for _, dim := range t.Dimensions {
		dims += ", " + strconv.Itoa(dim)
	}
	dtype := "dtypes." + t.DType.String()
	switch {
	case t.ChannelQuant != nil:
		scales := make([]string, len(t.ChannelQuant.Scales))
		for i, s := range t.ChannelQuant.Scales {
			scales[i] = formatFloat32(s)
		}
		return fmt.Sprintf("nnmodel.MakePerChannelOperandType(%s, []float32{%s}, %d%s)",
			dtype, strings.Join(scales, ", "), t.ChannelQuant.ChannelDim, dims)
	case t.Scale != 0 || t.ZeroPoint != 0:
		return fmt.Sprintf("nnmodel.MakeQuantizedOperandType(%s, %s, %d%s)", dtype, formatFloat32(t.Scale), t.ZeroPoint, dims)
	}
	return fmt.Sprintf("nnmodel.MakeOperandType(%s%s)", dtype, dims)
}

func formatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// sliceLiteral returns the Go slice literal with the decoded values of data.
func sliceLiteral(dtype dtypes.DType, data []byte) (string, error) {
	flat, err := dtypes.Decode(dtype, data)
	if err != nil {
		return "", err
	}
	var elements []string
	switch values := flat.(type) {
	case []float32:
		for _, v := range values {
			elements = append(elements, formatFloat32(v))
		}
	case []float16.Float16:
		for _, v := range values {
			elements = append(elements, fmt.Sprintf("float16.Frombits(0x%04x)", v.Bits()))
		}
	case []int32:
		for _, v := range values {
			elements = append(elements, strconv.FormatInt(int64(v), 10))
		}
	case []uint8:
		for _, v := range values {
			elements = append(elements, strconv.FormatUint(uint64(v), 10))
		}
	case []int8:
		for _, v := range values {
			elements = append(elements, strconv.FormatInt(int64(v), 10))
		}
	case []bool:
		for _, v := range values {
			elements = append(elements, strconv.FormatBool(v))
		}
	default:
		return "", errors.Errorf("no Go literal for values of dtype %s", dtype)
	}
	return fmt.Sprintf("[]%s{%s}", dtype.GoType(), strings.Join(elements, ", ")), nil
}

var fileTemplate = template.Must(template.New("file").Parse(`// Code generated by nnspecgen. DO NOT EDIT.

package {{.Package}}

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnconform/dtypes"
	nnmodel "github.com/gomlx/nnconform/model"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/janpfeifer/must"
{{- if .UsesFloat16}}
	"github.com/x448/float16"
{{- end}}
)

var (
	_ = dtypes.Invalid
	_ = optypes.Invalid
)
{{range .Cases}}
// CreateModel_{{.Name}} populates model with the {{.Name}} case.
func CreateModel_{{.Name}}(model *nnmodel.Model) {
{{- range $i, $t := .Types}}
	type{{$i}} := {{$t}}
{{- end}}
{{range .Operands}}
	{{.Var}} := must.M1(model.AddOperand(&{{.TypeVar}}))
{{- end}}
{{range .Operands}}{{if .Value}}
	must.M(nnmodel.SetOperandValueFrom(model, {{.Var}}, {{.Value}}))
{{- end}}{{end}}
	must.M(model.AddOperation({{.OpType}}, []nnmodel.OperandIndex{ {{- .OpInputs -}} }, []nnmodel.OperandIndex{ {{- .Outputs -}} }))
	must.M(model.IdentifyInputsAndOutputs([]nnmodel.OperandIndex{ {{- .ModelInputs -}} }, []nnmodel.OperandIndex{ {{- .Outputs -}} }))
{{- if .Relaxed}}
	must.M(model.RelaxComputationFloat32toFloat16(true))
{{- end}}
	if !model.IsValid() {
		exceptions.Panicf("CreateModel_{{.Name}}: model is not valid")
	}
}

var ignoredExamples_{{.Name}} = map[int]bool{ {{- range .IgnoredIndices}}{{.}}: true, {{end -}} }

func is_ignored_{{.Name}}(i int) bool {
	return ignoredExamples_{{.Name}}[i]
}
{{end}}`))
