// Package optypes defines OpType and lists the supported operations.
package optypes

import (
	"fmt"
	"slices"
)

// OpType is an enum of operation kinds a model can hold -- only GroupedConv2D has a reference kernel.
//
// The values match the NNAPI operation codes.
type OpType int32

const (
	Add             OpType = 0
	AveragePool2D   OpType = 1
	Concatenation   OpType = 2
	Conv2D          OpType = 3
	DepthwiseConv2D OpType = 4
	Dequantize      OpType = 6
	FullyConnected  OpType = 9
	Logistic        OpType = 14
	MaxPool2D       OpType = 17
	Mul             OpType = 18
	Relu            OpType = 19
	Relu1           OpType = 20
	Relu6           OpType = 21
	Reshape         OpType = 22
	Softmax         OpType = 25
	Tanh            OpType = 28
	Sub             OpType = 36
	Transpose       OpType = 37
	ChannelShuffle  OpType = 46
	GroupedConv2D   OpType = 55
	Quantize        OpType = 72
	TransposeConv2D OpType = 91

	// Invalid represents an unset operation kind.
	Invalid OpType = -1
)

type opInfo struct {
	name, apiName string

	// numInputs lists the accepted input arities; numOutputs the accepted output arity.
	numInputs  []int
	numOutputs int
}

var opInfos = map[OpType]opInfo{
	Add:             {"Add", "ADD", []int{3}, 1},
	AveragePool2D:   {"AveragePool2D", "AVERAGE_POOL_2D", []int{7, 8, 10, 11}, 1},
	Concatenation:   {"Concatenation", "CONCATENATION", nil, 1},
	Conv2D:          {"Conv2D", "CONV_2D", []int{7, 8, 10, 11, 13}, 1},
	DepthwiseConv2D: {"DepthwiseConv2D", "DEPTHWISE_CONV_2D", []int{8, 9, 11, 12, 14}, 1},
	Dequantize:      {"Dequantize", "DEQUANTIZE", []int{1}, 1},
	FullyConnected:  {"FullyConnected", "FULLY_CONNECTED", []int{4}, 1},
	Logistic:        {"Logistic", "LOGISTIC", []int{1}, 1},
	MaxPool2D:       {"MaxPool2D", "MAX_POOL_2D", []int{7, 8, 10, 11}, 1},
	Mul:             {"Mul", "MUL", []int{3}, 1},
	Relu:            {"Relu", "RELU", []int{1}, 1},
	Relu1:           {"Relu1", "RELU1", []int{1}, 1},
	Relu6:           {"Relu6", "RELU6", []int{1}, 1},
	Reshape:         {"Reshape", "RESHAPE", []int{2}, 1},
	Softmax:         {"Softmax", "SOFTMAX", []int{2, 3}, 1},
	Tanh:            {"Tanh", "TANH", []int{1}, 1},
	Sub:             {"Sub", "SUB", []int{3}, 1},
	Transpose:       {"Transpose", "TRANSPOSE", []int{1, 2}, 1},
	ChannelShuffle:  {"ChannelShuffle", "CHANNEL_SHUFFLE", []int{3}, 1},
	GroupedConv2D:   {"GroupedConv2D", "GROUPED_CONV_2D", []int{9, 11, 12, 14}, 1},
	Quantize:        {"Quantize", "QUANTIZE", []int{1}, 1},
	TransposeConv2D: {"TransposeConv2D", "TRANSPOSE_CONV_2D", []int{9, 11}, 1},
}

// IsValid returns whether the op type is known.
func (op OpType) IsValid() bool {
	_, found := opInfos[op]
	return found
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if info, found := opInfos[op]; found {
		return info.name
	}
	return fmt.Sprintf("OpType(%d)", int32(op))
}

// APIName returns the NNAPI spelling of the operation, e.g. "GROUPED_CONV_2D".
func (op OpType) APIName() string {
	if info, found := opInfos[op]; found {
		return info.apiName
	}
	return fmt.Sprintf("UNKNOWN_%d", int32(op))
}

// ValidInputArity returns whether the operation accepts numInputs inputs.
// Operations with a variable number of inputs (e.g. Concatenation) accept any number >= 2.
func (op OpType) ValidInputArity(numInputs int) bool {
	info, found := opInfos[op]
	if !found {
		return false
	}
	if info.numInputs == nil {
		return numInputs >= 2
	}
	return slices.Contains(info.numInputs, numInputs)
}

// NumOutputs returns the number of outputs the operation produces, or 0 if unknown.
func (op OpType) NumOutputs() int {
	return opInfos[op].numOutputs
}

// FromAPIName returns the OpType for the NNAPI spelling, or Invalid.
func FromAPIName(name string) OpType {
	for op, info := range opInfos {
		if info.apiName == name || info.name == name {
			return op
		}
	}
	return Invalid
}
