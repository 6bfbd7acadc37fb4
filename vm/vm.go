// Package vm implements the stack-based virtual machine that executes
// Pepper bytecode produced by the compiler package.
//
// The VM is the last stage of the pipeline:
//
//	Source -> Lexer -> Parser -> AST -> Compiler -> Bytecode -> VM -> Result
//
// It maintains a value stack, a global-bindings store, and a stack of call
// frames (one per active function invocation). Each frame tracks its own
// instruction pointer and a base pointer into the shared value stack, so
// local variables live directly on the stack rather than in a side table.
package vm

import (
	"fmt"

	"github.com/dr8co/pepper/code"
	"github.com/dr8co/pepper/compiler"
	"github.com/dr8co/pepper/object"
)

const (
	// StackSize is the number of slots reserved for the value stack.
	StackSize = 2048

	// GlobalsSize bounds the number of global bindings; operands that
	// reference globals are 16 bits wide.
	GlobalsSize = 65536

	// MaxFrames bounds the call-stack depth.
	MaxFrames = 1024
)

// True, False, and Null are shared singletons the VM pushes instead of
// allocating a fresh object each time. Builtins return their own
// *object.Null, so equality and truthiness checks go by type and value
// rather than by pointer identity against these.
var (
	True  = &object.Boolean{Value: true}
	False = &object.Boolean{Value: false}
	Null  = &object.Null{}
)

// VM executes compiled bytecode against a value stack and a global store.
type VM struct {
	constants []object.Object
	stack     []object.Object
	// sp points to the next free slot in the stack; the top element is stack[sp-1].
	sp int

	globals []object.Object

	frames      []*Frame
	framesIndex int
}

// New creates a VM ready to run the given bytecode, with fresh global bindings.
func New(bytecode *compiler.Bytecode) *VM {
	mainFn := &object.CompiledFunction{Instructions: bytecode.Instructions}
	mainClosure := &object.Closure{Fn: mainFn}
	mainFrame := NewFrame(mainClosure, 0)

	frames := make([]*Frame, MaxFrames)
	frames[0] = mainFrame

	return &VM{
		constants:   bytecode.Constants,
		stack:       make([]object.Object, StackSize),
		sp:          0,
		globals:     make([]object.Object, GlobalsSize),
		frames:      frames,
		framesIndex: 1,
	}
}

// NewWithGlobalStore creates a VM that reuses an existing global-bindings
// store, so a REPL can preserve global state between successive evaluations.
func NewWithGlobalStore(bytecode *compiler.Bytecode, s []object.Object) *VM {
	v := New(bytecode)
	v.globals = s
	return v
}

func (vm *VM) currentFrame() *Frame {
	return vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(f *Frame) {
	vm.frames[vm.framesIndex] = f
	vm.framesIndex++
}

func (vm *VM) popFrame() *Frame {
	vm.framesIndex--
	return vm.frames[vm.framesIndex]
}

// Run executes the bytecode loaded into the VM via a fetch-decode-execute loop.
func (vm *VM) Run() error {
	var ip int
	var ins code.Instructions
	var op code.Opcode

	for vm.currentFrame().ip < len(vm.currentFrame().Instructions())-1 {
		vm.currentFrame().ip++

		ip = vm.currentFrame().ip
		ins = vm.currentFrame().Instructions()
		op = code.Opcode(ins[ip])

		switch op {
		case code.OpConstant:
			constIndex := code.ReadUint16(ins[ip+1:])
			vm.currentFrame().ip += 2

			if err := vm.push(vm.constants[constIndex]); err != nil {
				return err
			}

		case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpMod:
			if err := vm.executeBinaryOperation(op); err != nil {
				return err
			}

		case code.OpEqual, code.OpNotEqual, code.OpGreaterThan, code.OpGreaterThanEq:
			if err := vm.executeComparison(op); err != nil {
				return err
			}

		case code.OpAnd, code.OpOr:
			if err := vm.executeLogicalOperation(op); err != nil {
				return err
			}

		case code.OpMinus:
			if err := vm.executeMinusOperator(); err != nil {
				return err
			}

		case code.OpBang:
			if err := vm.executeBangOperator(); err != nil {
				return err
			}

		case code.OpTrue:
			if err := vm.push(True); err != nil {
				return err
			}

		case code.OpFalse:
			if err := vm.push(False); err != nil {
				return err
			}

		case code.OpNull:
			if err := vm.push(Null); err != nil {
				return err
			}

		case code.OpJump:
			pos := int(code.ReadUint16(ins[ip+1:]))
			vm.currentFrame().ip = pos - 1

		case code.OpJumpNotTruthy:
			pos := int(code.ReadUint16(ins[ip+1:]))
			vm.currentFrame().ip += 2

			condition := vm.pop()
			if !isTruthy(condition) {
				vm.currentFrame().ip = pos - 1
			}

		case code.OpSetGlobal:
			globalIndex := code.ReadUint16(ins[ip+1:])
			vm.currentFrame().ip += 2
			vm.globals[globalIndex] = vm.pop()

		case code.OpGetGlobal:
			globalIndex := code.ReadUint16(ins[ip+1:])
			vm.currentFrame().ip += 2

			if err := vm.push(vm.globals[globalIndex]); err != nil {
				return err
			}

		case code.OpSetLocal:
			localIndex := int(ins[ip+1])
			vm.currentFrame().ip += 1

			frame := vm.currentFrame()
			vm.stack[frame.basePointer+localIndex] = vm.pop()

		case code.OpGetLocal:
			localIndex := int(ins[ip+1])
			vm.currentFrame().ip += 1

			frame := vm.currentFrame()
			if err := vm.push(vm.stack[frame.basePointer+localIndex]); err != nil {
				return err
			}

		case code.OpGetBuiltin:
			builtinIndex := int(ins[ip+1])
			vm.currentFrame().ip += 1

			definition := object.Builtins[builtinIndex]
			if err := vm.push(definition.Builtin); err != nil {
				return err
			}

		case code.OpArray:
			numElements := int(code.ReadUint16(ins[ip+1:]))
			vm.currentFrame().ip += 2

			array := vm.buildArray(vm.sp-numElements, vm.sp)
			vm.sp -= numElements

			if err := vm.push(array); err != nil {
				return err
			}

		case code.OpHash:
			numElements := int(code.ReadUint16(ins[ip+1:]))
			vm.currentFrame().ip += 2

			hash, err := vm.buildHash(vm.sp-numElements, vm.sp)
			if err != nil {
				return err
			}
			vm.sp -= numElements

			if err := vm.push(hash); err != nil {
				return err
			}

		case code.OpIndex:
			index := vm.pop()
			left := vm.pop()

			if err := vm.executeIndexExpression(left, index); err != nil {
				return err
			}

		case code.OpSetIndex:
			if err := vm.executeSetIndex(); err != nil {
				return err
			}

		case code.OpCall:
			numArgs := int(ins[ip+1])
			vm.currentFrame().ip += 1

			if err := vm.executeCall(numArgs); err != nil {
				return err
			}

		case code.OpReturnValue:
			returnValue := vm.pop()

			frame := vm.popFrame()
			vm.sp = frame.basePointer - 1

			if err := vm.push(returnValue); err != nil {
				return err
			}

		case code.OpReturn:
			frame := vm.popFrame()
			vm.sp = frame.basePointer - 1

			if err := vm.push(Null); err != nil {
				return err
			}

		case code.OpClosure:
			constIndex := code.ReadUint16(ins[ip+1:])
			numFree := int(ins[ip+3])
			vm.currentFrame().ip += 3

			if err := vm.pushClosure(int(constIndex), numFree); err != nil {
				return err
			}

		case code.OpGetFree:
			freeIndex := int(ins[ip+1])
			vm.currentFrame().ip += 1

			currentClosure := vm.currentFrame().cl
			if err := vm.push(currentClosure.Free[freeIndex]); err != nil {
				return err
			}

		case code.OpCurrentClosure:
			currentClosure := vm.currentFrame().cl
			if err := vm.push(currentClosure); err != nil {
				return err
			}

		case code.OpPop:
			vm.pop()

		default:
			return fmt.Errorf("unknown opcode %d", op)
		}
	}

	return nil
}

// isTruthy reports whether obj counts as true in a conditional context.
// Null is falsey, booleans are themselves, and everything else is truthy.
func isTruthy(obj object.Object) bool {
	switch obj := obj.(type) {
	case *object.Boolean:
		return obj.Value
	case *object.Null:
		return false
	default:
		return true
	}
}

func (vm *VM) push(o object.Object) error {
	if vm.sp >= StackSize {
		return newRuntimeError("stack overflow")
	}

	vm.stack[vm.sp] = o
	vm.sp++

	return nil
}

// LastPoppedStackElem returns the element most recently removed from the
// stack. Callers use this after Run returns to read the final result,
// since a complete program's last expression leaves exactly one OpPop
// behind as its final instruction.
func (vm *VM) LastPoppedStackElem() object.Object {
	return vm.stack[vm.sp]
}

func (vm *VM) pop() object.Object {
	o := vm.stack[vm.sp-1]
	vm.sp--
	return o
}

func (vm *VM) executeBinaryOperation(op code.Opcode) error {
	right := vm.pop()
	left := vm.pop()

	leftType := left.Type()
	rightType := right.Type()

	switch {
	case leftType == object.INTEGER_OBJ && rightType == object.INTEGER_OBJ:
		return vm.executeBinaryIntegerOperation(op, left, right)
	case leftType == object.STRING_OBJ && rightType == object.STRING_OBJ:
		return vm.executeBinaryStringOperation(op, left, right)
	default:
		return newRuntimeError("unsupported types for binary operation: %s %s", leftType, rightType)
	}
}

func (vm *VM) executeBinaryIntegerOperation(op code.Opcode, left, right object.Object) error {
	leftValue := left.(*object.Integer).Value
	rightValue := right.(*object.Integer).Value

	var result int64
	switch op {
	case code.OpAdd:
		result = leftValue + rightValue
	case code.OpSub:
		result = leftValue - rightValue
	case code.OpMul:
		result = leftValue * rightValue
	case code.OpDiv:
		if rightValue == 0 {
			return newRuntimeError("division by zero")
		}
		result = leftValue / rightValue
	case code.OpMod:
		if rightValue == 0 {
			return newRuntimeError("division by zero")
		}
		result = leftValue % rightValue
	default:
		return newRuntimeError("unknown integer operator: %d", op)
	}

	return vm.push(&object.Integer{Value: result})
}

func (vm *VM) executeBinaryStringOperation(op code.Opcode, left, right object.Object) error {
	if op != code.OpAdd {
		return newRuntimeError("unknown string operator: %d", op)
	}

	leftValue := left.(*object.String).Value
	rightValue := right.(*object.String).Value

	return vm.push(&object.String{Value: leftValue + rightValue})
}

func (vm *VM) executeComparison(op code.Opcode) error {
	right := vm.pop()
	left := vm.pop()

	if left.Type() == object.INTEGER_OBJ && right.Type() == object.INTEGER_OBJ {
		return vm.executeIntegerComparison(op, left, right)
	}

	switch op {
	case code.OpEqual:
		return vm.push(nativeBoolToBooleanObject(objectsEqual(left, right)))
	case code.OpNotEqual:
		return vm.push(nativeBoolToBooleanObject(!objectsEqual(left, right)))
	default:
		return newRuntimeError("unknown operator: %d (%s %s)", op, left.Type(), right.Type())
	}
}

// objectsEqual implements the structural/reference-identity split required
// of OpEqual and OpNotEqual: Boolean, String, and Null compare by value;
// every other variant (Array, Hash, Closure, Builtin, CompiledFunction)
// compares by reference identity.
func objectsEqual(left, right object.Object) bool {
	if left.Type() != right.Type() {
		return false
	}

	switch left := left.(type) {
	case *object.Boolean:
		return left.Value == right.(*object.Boolean).Value
	case *object.String:
		return left.Value == right.(*object.String).Value
	case *object.Null:
		return true
	default:
		return left == right
	}
}

func (vm *VM) executeIntegerComparison(op code.Opcode, left, right object.Object) error {
	leftValue := left.(*object.Integer).Value
	rightValue := right.(*object.Integer).Value

	var result *object.Boolean
	switch op {
	case code.OpGreaterThan:
		result = nativeBoolToBooleanObject(leftValue > rightValue)
	case code.OpGreaterThanEq:
		result = nativeBoolToBooleanObject(leftValue >= rightValue)
	case code.OpEqual:
		result = nativeBoolToBooleanObject(leftValue == rightValue)
	case code.OpNotEqual:
		result = nativeBoolToBooleanObject(leftValue != rightValue)
	default:
		return newRuntimeError("unknown operator: %d", op)
	}

	return vm.push(result)
}

// executeLogicalOperation implements && and ||. Both operands are already
// on the stack by the time this runs, since the compiler does not
// short-circuit them.
func (vm *VM) executeLogicalOperation(op code.Opcode) error {
	right := vm.pop()
	left := vm.pop()

	leftBool, ok := left.(*object.Boolean)
	if !ok {
		return newRuntimeError("unsupported type for logical operation: %s", left.Type())
	}
	rightBool, ok := right.(*object.Boolean)
	if !ok {
		return newRuntimeError("unsupported type for logical operation: %s", right.Type())
	}

	var result bool
	switch op {
	case code.OpAnd:
		result = leftBool.Value && rightBool.Value
	case code.OpOr:
		result = leftBool.Value || rightBool.Value
	default:
		return newRuntimeError("unknown logical operator: %d", op)
	}

	return vm.push(nativeBoolToBooleanObject(result))
}

func nativeBoolToBooleanObject(b bool) *object.Boolean {
	if b {
		return True
	}
	return False
}

func (vm *VM) executeBangOperator() error {
	operand := vm.pop()

	// isTruthy switches on dynamic type rather than identity against the
	// True/False/Null singletons, so it also handles a Null or Boolean
	// built fresh by a builtin rather than reused from those singletons.
	if isTruthy(operand) {
		return vm.push(False)
	}
	return vm.push(True)
}

func (vm *VM) executeMinusOperator() error {
	operand := vm.pop()

	if operand.Type() != object.INTEGER_OBJ {
		return newRuntimeError("unsupported type for negation: %s", operand.Type())
	}

	value := operand.(*object.Integer).Value
	return vm.push(&object.Integer{Value: -value})
}

func (vm *VM) buildArray(startIndex, endIndex int) object.Object {
	elements := make([]object.Object, endIndex-startIndex)
	for i := startIndex; i < endIndex; i++ {
		elements[i-startIndex] = vm.stack[i]
	}
	return &object.Array{Elements: elements}
}

func (vm *VM) buildHash(startIndex, endIndex int) (object.Object, error) {
	hashedPairs := make(map[object.HashKey]object.HashPair)

	for i := startIndex; i < endIndex; i += 2 {
		key := vm.stack[i]
		value := vm.stack[i+1]

		hashKey, ok := key.(object.Hashable)
		if !ok {
			return nil, newRuntimeError("unusable as hash key: %s", key.Type())
		}

		hashedPairs[hashKey.HashKey()] = object.HashPair{Key: key, Value: value}
	}

	return &object.Hash{Pairs: hashedPairs}, nil
}

func (vm *VM) executeIndexExpression(left, index object.Object) error {
	switch {
	case left.Type() == object.ARRAY_OBJ && index.Type() == object.INTEGER_OBJ:
		return vm.executeArrayIndex(left, index)
	case left.Type() == object.HASH_OBJ:
		return vm.executeHashIndex(left, index)
	default:
		return newRuntimeError("index operator not supported: %s", left.Type())
	}
}

func (vm *VM) executeArrayIndex(array, index object.Object) error {
	arrayObject := array.(*object.Array)
	i := index.(*object.Integer).Value
	max := int64(len(arrayObject.Elements) - 1)

	if i < 0 || i > max {
		return vm.push(Null)
	}

	return vm.push(arrayObject.Elements[i])
}

func (vm *VM) executeHashIndex(hash, index object.Object) error {
	hashObject := hash.(*object.Hash)

	key, ok := index.(object.Hashable)
	if !ok {
		return newRuntimeError("unusable as hash key: %s", index.Type())
	}

	pair, ok := hashObject.Pairs[key.HashKey()]
	if !ok {
		return vm.push(Null)
	}

	return vm.push(pair.Value)
}

// executeSetIndex implements array element assignment. The compiler emits
// value, then container, then index, so the stack holds [value, container, index]
// with index on top.
func (vm *VM) executeSetIndex() error {
	index := vm.pop()
	container := vm.pop()
	value := vm.pop()

	array, ok := container.(*object.Array)
	if !ok {
		return newRuntimeError("index assignment not supported: %s", container.Type())
	}

	i, ok := index.(*object.Integer)
	if !ok {
		return newRuntimeError("array index must be an integer, got %s", index.Type())
	}

	if i.Value < 0 || i.Value >= int64(len(array.Elements)) {
		return newRuntimeError("index out of range: %d", i.Value)
	}

	array.Elements[i.Value] = value

	return vm.push(value)
}

func (vm *VM) executeCall(numArgs int) error {
	callee := vm.stack[vm.sp-1-numArgs]

	switch callee := callee.(type) {
	case *object.Closure:
		return vm.callClosure(callee, numArgs)
	case *object.Builtin:
		return vm.callBuiltin(callee, numArgs)
	default:
		return newRuntimeError("calling non-function and non-built-in")
	}
}

func (vm *VM) callClosure(cl *object.Closure, numArgs int) error {
	if numArgs != cl.Fn.NumParameters {
		return newRuntimeError("wrong number of arguments: want=%d, got=%d", cl.Fn.NumParameters, numArgs)
	}

	if vm.framesIndex >= MaxFrames {
		return newRuntimeError("call stack overflow")
	}

	basePointer := vm.sp - numArgs
	frame := NewFrame(cl, basePointer)
	vm.pushFrame(frame)

	vm.sp = frame.basePointer + cl.Fn.NumLocals

	return nil
}

func (vm *VM) callBuiltin(builtin *object.Builtin, numArgs int) error {
	args := vm.stack[vm.sp-numArgs : vm.sp]

	result := builtin.Fn(args...)
	vm.sp = vm.sp - numArgs - 1

	if errObj, ok := result.(*object.Error); ok {
		return newRuntimeError("%s", errObj.Message)
	}

	if result != nil {
		return vm.push(result)
	}
	return vm.push(Null)
}

// pushClosure builds a closure from the compiled function at constIndex,
// capturing numFree free variables off the top of the stack.
func (vm *VM) pushClosure(constIndex, numFree int) error {
	constant := vm.constants[constIndex]
	function, ok := constant.(*object.CompiledFunction)
	if !ok {
		return newRuntimeError("not a function: %+v", constant)
	}

	free := make([]object.Object, numFree)
	for i := 0; i < numFree; i++ {
		free[i] = vm.stack[vm.sp-numFree+i]
	}
	vm.sp -= numFree

	closure := &object.Closure{Fn: function, Free: free}
	return vm.push(closure)
}
