package vm

import (
	"fmt"
	"testing"

	"github.com/dr8co/pepper/ast"
	"github.com/dr8co/pepper/compiler"
	"github.com/dr8co/pepper/lexer"
	"github.com/dr8co/pepper/object"
	"github.com/dr8co/pepper/parser"
)

type vmTestCase struct {
	input    string
	expected any
}

func TestIntegerArithmetic(t *testing.T) {
	tests := []vmTestCase{
		{"1", 1},
		{"2", 2},
		{"1 + 2", 3},
		{"1 - 2", -1},
		{"1 * 2", 2},
		{"4 / 2", 2},
		{"7 % 2", 1},
		{"50 / 2 * 2 + 10 - 5", 55},
		{"5 + 5 + 5 + 5 - 10", 10},
		{"2 * 2 * 2 * 2 * 2", 32},
		{"5 * 2 + 10", 20},
		{"5 + 2 * 10", 25},
		{"5 * (2 + 10)", 60},
		{"-5", -5},
		{"-10", -10},
		{"-50 + 100 + -50", 0},
		{"(5 + 10 * 2 + 15 / 3) * 2 + -10", 50},
	}

	runVmTests(t, tests)
}

func TestBooleanExpressions(t *testing.T) {
	tests := []vmTestCase{
		{"true", true},
		{"false", false},
		{"1 < 2", true},
		{"1 > 2", false},
		{"1 < 1", false},
		{"1 > 1", false},
		{"1 <= 1", true},
		{"1 >= 1", true},
		{"1 == 1", true},
		{"1 != 1", false},
		{"1 == 2", false},
		{"1 != 2", true},
		{"true == true", true},
		{"false == false", true},
		{"true == false", false},
		{"true != false", true},
		{"(1 < 2) == true", true},
		{"(1 < 2) == false", false},
		{"!true", false},
		{"!false", true},
		{"!5", false},
		{"!!true", true},
		{"!!false", false},
		{"!!5", true},
		{"true && false", false},
		{"true && true", true},
		{"false || true", true},
		{"false || false", false},
	}

	runVmTests(t, tests)
}

func TestConditionals(t *testing.T) {
	tests := []vmTestCase{
		{"if (true) { 10 }", 10},
		{"if (true) { 10 } else { 20 }", 10},
		{"if (false) { 10 } else { 20 }", 20},
		{"if (1) { 10 }", 10},
		{"if (1 < 2) { 10 }", 10},
		{"if (1 < 2) { 10 } else { 20 }", 10},
		{"if (1 > 2) { 10 } else { 20 }", 20},
		{"if (1 > 2) { 10 }", Null},
		{"if (false) { 10 }", Null},
		{"if ((if (false) { 10 })) { 10 } else { 20 }", 20},
	}

	runVmTests(t, tests)
}

func TestGlobalLetStatements(t *testing.T) {
	tests := []vmTestCase{
		{"let one = 1; one", 1},
		{"let one = 1; let two = 2; one + two", 3},
		{"let one = 1; let two = one + one; one + two", 3},
	}

	runVmTests(t, tests)
}

// TestAssignment verifies that reassigning a variable both updates its
// storage and yields the new value as an expression result.
func TestAssignment(t *testing.T) {
	tests := []vmTestCase{
		{"let x = 1; x = 2; x", 2},
		{"let x = 1; let y = (x = 5); y", 5},
		{"let x = 1; x = x + 1; x = x + 1; x", 3},
	}

	runVmTests(t, tests)
}

func TestWhileLoop(t *testing.T) {
	tests := []vmTestCase{
		{"let x = 0; while (x < 5) { x = x + 1; } x", 5},
		{"let sum = 0; let i = 0; while (i < 5) { sum = sum + i; i = i + 1; } sum", 10},
		{`
		let x = 0;
		while (x < 10) {
			x = x + 1;
			if (x == 3) {
				break;
			}
		}
		x
		`, 3},
		{`
		let sum = 0;
		let i = 0;
		while (i < 5) {
			i = i + 1;
			if (i == 3) {
				continue;
			}
			sum = sum + i;
		}
		sum
		`, 12},
	}

	runVmTests(t, tests)
}

func TestForLoop(t *testing.T) {
	tests := []vmTestCase{
		{"let sum = 0; for (let i = 0; i < 5; i = i + 1) { sum = sum + i; } sum", 10},
		// The loop header opens its own block scope: an outer "i" is shadowed
		// for the duration of the loop and restored once it ends, unaffected
		// by whatever the loop's own "i" counted up to.
		{"let i = 100; for (let i = 0; i < 3; i = i + 1) {} i", 100},
		{`
		let sum = 0;
		for (let i = 0; i < 10; i = i + 1) {
			if (i >= 5) {
				break;
			}
			sum = sum + i;
		}
		sum
		`, 10},
	}

	runVmTests(t, tests)
}

func TestStringExpressions(t *testing.T) {
	tests := []vmTestCase{
		{`"monkey"`, "monkey"},
		{`"mon" + "key"`, "monkey"},
		{`"mon" + "key" + "banana"`, "monkeybanana"},
	}

	runVmTests(t, tests)
}

// TestStructuralEquality exercises the equality split required of OpEqual:
// Integer, Boolean, String, and Null compare by value even when the two
// operands are distinct runtime objects built from different expressions.
func TestStructuralEquality(t *testing.T) {
	tests := []vmTestCase{
		{`"mon" + "key" == "monkey"`, true},
		{`"mon" + "key" != "monkey"`, false},
		{`"a" == "b"`, false},
		{`if (false) { 1 } == if (false) { 1 }`, true},
		{`[1] == [1]`, false},
	}

	runVmTests(t, tests)
}

func TestArrayLiterals(t *testing.T) {
	tests := []vmTestCase{
		{"[]", []int{}},
		{"[1, 2, 3]", []int{1, 2, 3}},
		{"[1 + 2, 3 * 4, 5 + 6]", []int{3, 12, 11}},
	}

	runVmTests(t, tests)
}

func TestHashLiterals(t *testing.T) {
	tests := []vmTestCase{
		{"{}", map[object.HashKey]int64{}},
		{
			"{1: 2, 2: 3}",
			map[object.HashKey]int64{
				(&object.Integer{Value: 1}).HashKey(): 2,
				(&object.Integer{Value: 2}).HashKey(): 3,
			},
		},
	}

	runVmTests(t, tests)
}

func TestIndexExpressions(t *testing.T) {
	tests := []vmTestCase{
		{"[1, 2, 3][1]", 2},
		{"[1, 2, 3][0 + 2]", 3},
		{"[[1, 1, 1]][0][0]", 1},
		{"[][0]", Null},
		{"[1, 2, 3][99]", Null},
		{"[1][-1]", Null},
		{"{1: 1, 2: 2}[1]", 1},
		{"{1: 1, 2: 2}[2]", 2},
		{"{1: 1}[0]", Null},
		{"{}[0]", Null},
	}

	runVmTests(t, tests)
}

// TestIndexAssignment exercises OpSetIndex including the bounds-checked
// runtime error path.
func TestIndexAssignment(t *testing.T) {
	tests := []vmTestCase{
		{"let a = [1, 2, 3]; a[0] = 9; a[0]", 9},
		{"let a = [1, 2, 3]; a[1] = a[1] + 1; a[1]", 3},
		{"let a = [1, 2, 3]; (a[2] = 100)", 100},
	}

	runVmTests(t, tests)

	errTests := []string{
		"let a = [1, 2, 3]; a[5] = 1;",
		"let a = [1, 2, 3]; a[-1] = 1;",
	}
	for _, input := range errTests {
		program := parse(input)
		comp := compiler.New()
		if err := comp.Compile(program); err != nil {
			t.Fatalf("compiler error: %s", err)
		}
		machine := New(comp.Bytecode())
		err := machine.Run()
		if err == nil {
			t.Fatalf("expected runtime error for out-of-bounds index assignment, input=%q", input)
		}
	}
}

// TestBuiltinArgumentError checks that a builtin call that fails its own
// argument validation (wrong count or wrong type) surfaces as a VM
// RuntimeError rather than leaving an *object.Error value sitting on the stack.
func TestBuiltinArgumentError(t *testing.T) {
	inputs := []string{
		`len(1, 2)`,
		`len(1)`,
	}
	for _, input := range inputs {
		program := parse(input)
		comp := compiler.New()
		if err := comp.Compile(program); err != nil {
			t.Fatalf("compiler error: %s", err)
		}
		machine := New(comp.Bytecode())
		err := machine.Run()
		if err == nil {
			t.Fatalf("expected runtime error for %q, got none", input)
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	inputs := []string{"1 / 0", "1 % 0"}
	for _, input := range inputs {
		program := parse(input)
		comp := compiler.New()
		if err := comp.Compile(program); err != nil {
			t.Fatalf("compiler error: %s", err)
		}
		machine := New(comp.Bytecode())
		err := machine.Run()
		if err == nil {
			t.Fatalf("expected runtime error for %q, got none", input)
		}
	}
}

func TestCallingFunctionsWithoutArguments(t *testing.T) {
	tests := []vmTestCase{
		{
			input: `
			let fivePlusTen = fn() { 5 + 10; };
			fivePlusTen();
			`,
			expected: 15,
		},
		{
			input: `
			let one = fn() { 1; };
			let two = fn() { 2; };
			one() + two()
			`,
			expected: 3,
		},
		{
			input: `
			let earlyExit = fn() { return 99; 100; };
			earlyExit();
			`,
			expected: 99,
		},
	}

	runVmTests(t, tests)
}

func TestCallingFunctionsWithArgumentsAndBindings(t *testing.T) {
	tests := []vmTestCase{
		{
			input: `
			let identity = fn(a) { a; };
			identity(4);
			`,
			expected: 4,
		},
		{
			input: `
			let sum = fn(a, b) { let c = a + b; c; };
			sum(1, 2);
			`,
			expected: 3,
		},
	}

	runVmTests(t, tests)
}

func TestClosures(t *testing.T) {
	tests := []vmTestCase{
		{
			input: `
			let newAdder = fn(a, b) {
				fn(c) { a + b + c };
			};
			let adder = newAdder(1, 2);
			adder(8);
			`,
			expected: 11,
		},
	}

	runVmTests(t, tests)
}

func TestRecursiveFunctions(t *testing.T) {
	tests := []vmTestCase{
		{
			input: `
			let countDown = fn(x) {
				if (x == 0) {
					return 0;
				} else {
					countDown(x - 1);
				}
			};
			countDown(5);
			`,
			expected: 0,
		},
		{
			input: `
			let wrapper = fn() {
				let countDown = fn(x) {
					if (x == 0) {
						return 0;
					} else {
						countDown(x - 1);
					}
				};
				countDown(2);
			};
			wrapper();
			`,
			expected: 0,
		},
	}

	runVmTests(t, tests)
}

func TestBuiltinFunctions(t *testing.T) {
	tests := []vmTestCase{
		{`len("")`, 0},
		{`len("four")`, 4},
		{`len([1, 2, 3])`, 3},
		{`len([])`, 0},
		{`first([1, 2, 3])`, 1},
		{`first([])`, Null},
		{`last([1, 2, 3])`, 3},
		{`last([])`, Null},
		{`rest([1, 2, 3])`, []int{2, 3}},
		{`rest([])`, Null},
		{`push([1, 2], 3)`, []int{1, 2, 3}},
	}

	runVmTests(t, tests)
}

// TestBangOnBuiltinNull checks that negating a Null value returned by a
// builtin (a freshly allocated *object.Null, not the VM's own singleton)
// is still truthy-correct: Null is falsy, so !Null must be true.
func TestBangOnBuiltinNull(t *testing.T) {
	tests := []vmTestCase{
		{`!first([])`, true},
		{`!rest([])`, true},
		{`!last([])`, true},
		{`!puts("x")`, true},
	}

	runVmTests(t, tests)
}

func runVmTests(t *testing.T, tests []vmTestCase) {
	t.Helper()

	for _, tt := range tests {
		program := parse(tt.input)

		comp := compiler.New()
		err := comp.Compile(program)
		if err != nil {
			t.Fatalf("compiler error: %s", err)
		}

		machine := New(comp.Bytecode())
		err = machine.Run()
		if err != nil {
			t.Fatalf("vm error for input %q: %s", tt.input, err)
		}

		stackElem := machine.LastPoppedStackElem()

		if err := testExpectedObject(tt.expected, stackElem); err != nil {
			t.Errorf("input %q: %s", tt.input, err)
		}
	}
}

func parse(input string) *ast.Program {
	l := lexer.New(input)
	p := parser.New(l)
	return p.ParseProgram()
}

func testExpectedObject(expected any, actual object.Object) error {
	switch expected := expected.(type) {
	case int:
		return testIntegerObject(int64(expected), actual)
	case bool:
		return testBooleanObject(expected, actual)
	case string:
		return testStringObject(expected, actual)
	case []int:
		array, ok := actual.(*object.Array)
		if !ok {
			return fmt.Errorf("object not Array: %T (%+v)", actual, actual)
		}
		if len(array.Elements) != len(expected) {
			return fmt.Errorf("wrong number of elements. want=%d, got=%d", len(expected), len(array.Elements))
		}
		for i, expectedElem := range expected {
			if err := testIntegerObject(int64(expectedElem), array.Elements[i]); err != nil {
				return fmt.Errorf("element %d: %s", i, err)
			}
		}
		return nil
	case map[object.HashKey]int64:
		hash, ok := actual.(*object.Hash)
		if !ok {
			return fmt.Errorf("object not Hash: %T (%+v)", actual, actual)
		}
		if len(hash.Pairs) != len(expected) {
			return fmt.Errorf("wrong number of pairs. want=%d, got=%d", len(expected), len(hash.Pairs))
		}
		for expectedKey, expectedValue := range expected {
			pair, ok := hash.Pairs[expectedKey]
			if !ok {
				return fmt.Errorf("no pair for given key in pairs")
			}
			if err := testIntegerObject(expectedValue, pair.Value); err != nil {
				return fmt.Errorf("pair value: %s", err)
			}
		}
		return nil
	case *object.Null:
		if _, ok := actual.(*object.Null); !ok {
			return fmt.Errorf("object is not Null: %T (%+v)", actual, actual)
		}
		return nil
	default:
		return fmt.Errorf("unhandled expected type %T", expected)
	}
}

func testIntegerObject(expected int64, actual object.Object) error {
	result, ok := actual.(*object.Integer)
	if !ok {
		return fmt.Errorf("object is not Integer. got=%T (%+v)", actual, actual)
	}
	if result.Value != expected {
		return fmt.Errorf("object has wrong value. got=%d, want=%d", result.Value, expected)
	}
	return nil
}

func testBooleanObject(expected bool, actual object.Object) error {
	result, ok := actual.(*object.Boolean)
	if !ok {
		return fmt.Errorf("object is not Boolean. got=%T (%+v)", actual, actual)
	}
	if result.Value != expected {
		return fmt.Errorf("object has wrong value. got=%t, want=%t", result.Value, expected)
	}
	return nil
}

func testStringObject(expected string, actual object.Object) error {
	result, ok := actual.(*object.String)
	if !ok {
		return fmt.Errorf("object is not String. got=%T (%+v)", actual, actual)
	}
	if result.Value != expected {
		return fmt.Errorf("object has wrong value. got=%q, want=%q", result.Value, expected)
	}
	return nil
}
