package counting

import "testing"

func TestEval_Numbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"5", 5, true},
		{"  42  ", 42, true},
		{"-3", -3, true},
		{"+7", 7, true},
		{"3.5", 3.5, true},
		{"2+3", 5, true},
		{"10/4", 2.5, true},
		{"2*3+1", 7, true},
		{"2+3*4", 14, true},
		{"(2+3)*4", 20, true},
		{"7//2", 3, true},
		{"-7//2", -4, true},
		{"7%3", 1, true},
		{"-7%3", 2, true},
		{"2**10", 1024, true},
		{"-2**2", -4, true},
		{"2**-1", 0.5, true},
		{"abs(-7)", 7, true},
		{"round(2.6)", 3, true},
		{"round(3.14159, 2)", 3.14, true},
		{"min(4, 2, 9)", 2, true},
		{"max([1, 5, 3])", 5, true},
		{"sum([1, 2, 3])", 6, true},
		{"1/3+2/3", 1, true},
	}
	for _, tt := range tests {
		got, ok := Eval(tt.input)
		if ok != tt.ok {
			t.Errorf("Eval(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("Eval(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestEval_Rejections(t *testing.T) {
	inputs := []string{
		"",
		"hello",
		"True",
		"False",
		"true",
		"__import__('os')",
		"os.system('ls')",
		"x + 1",
		"[1,2,3]", // a bare list is not a number
		"1/0",
		"7//0",
		"5%0",
		"2 ** 10000 ** 10000", // overflows to inf
		"abs()",
		"abs(1, 2)",
		"sum(1, 2)",
		"min()",
		"pow(2, 3)", // not on the allow-list
		"lambda: 1",
		"(1,2)",
		"1..2",
		"\"3\"",
		"1 if True else 2",
	}
	for _, input := range inputs {
		if got, ok := Eval(input); ok {
			t.Errorf("Eval(%q) = %v, want rejection", input, got)
		}
	}
}

func TestEval_ZeroIsValid(t *testing.T) {
	got, ok := Eval("0")
	if !ok {
		t.Fatal("Eval(\"0\") should succeed")
	}
	if got != 0 {
		t.Errorf("Eval(\"0\") = %v, want 0", got)
	}

	got, ok = Eval("5-5")
	if !ok || got != 0 {
		t.Errorf("Eval(\"5-5\") = %v ok=%v, want 0 true", got, ok)
	}
}

func TestEval_FractionRounding(t *testing.T) {
	got, ok := Eval("1/3")
	if !ok {
		t.Fatal("Eval(\"1/3\") should succeed")
	}
	if got != 0.3333333333 {
		t.Errorf("Eval(\"1/3\") = %v, want 0.3333333333", got)
	}
}
