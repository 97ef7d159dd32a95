package knight

type ParamDoc struct {
	Name        string
	Description string
}

type Doc struct {
	Description string
	Params      []ParamDoc
	Returns     string
}

func NewDoc(description string, params []ParamDoc, returns string) *Doc {
	return &Doc{
		Description: description,
		Params:      params,
		Returns:     returns,
	}
}

// BuiltinDocs documents every operator key, including extensions.
var BuiltinDocs = map[string]*Doc{
	"T": NewDoc("The literal true.", nil, "boolean"),
	"F": NewDoc("The literal false.", nil, "boolean"),
	"N": NewDoc("The literal null.", nil, "null"),
	"@": NewDoc("The empty list.", nil, "list"),

	"B": NewDoc(
		"Defers its argument. The body runs each time the block is called, against the variables as they are at that moment.",
		[]ParamDoc{{"body", "Expression to defer."}},
		"block",
	),
	"C": NewDoc(
		"Runs a block and returns its value. Any other value evaluates to itself.",
		[]ParamDoc{{"block", "Block to run."}},
		"any",
	),
	"=": NewDoc(
		"Assigns a value to a variable and returns the value.",
		[]ParamDoc{{"variable", "Variable name."}, {"value", "New value."}},
		"any",
	),
	"&": NewDoc(
		"Returns the first argument if it is falsy, otherwise evaluates and returns the second.",
		[]ParamDoc{{"lhs", "First operand."}, {"rhs", "Evaluated only when lhs is truthy."}},
		"any",
	),
	"|": NewDoc(
		"Returns the first argument if it is truthy, otherwise evaluates and returns the second.",
		[]ParamDoc{{"lhs", "First operand."}, {"rhs", "Evaluated only when lhs is falsy."}},
		"any",
	),
	";": NewDoc(
		"Evaluates the first argument, discards it, and returns the second.",
		[]ParamDoc{{"first", "Evaluated for its effects."}, {"second", "Result."}},
		"any",
	),
	"I": NewDoc(
		"Evaluates the condition and then exactly one of the branches.",
		[]ParamDoc{{"condition", "Coerced to boolean."}, {"then", "Result when truthy."}, {"else", "Result when falsy."}},
		"any",
	),
	"W": NewDoc(
		"Evaluates the body while the condition is truthy.",
		[]ParamDoc{{"condition", "Re-evaluated before every iteration."}, {"body", "Loop body."}},
		"null",
	),

	"P": NewDoc("Reads a line from input without its line ending. Returns null at end of input.", nil, "string | null"),
	"R": NewDoc("Returns a random non-negative integer.", nil, "integer"),
	":": NewDoc("Returns its argument unchanged.", []ParamDoc{{"value", "Any value."}}, "any"),
	"Q": NewDoc(
		"Stops the program with the given status code.",
		[]ParamDoc{{"status", "Coerced to integer."}},
		"never",
	),
	"!": NewDoc("Logical negation.", []ParamDoc{{"value", "Coerced to boolean."}}, "boolean"),
	"~": NewDoc("Arithmetic negation.", []ParamDoc{{"value", "Coerced to integer."}}, "integer"),
	"L": NewDoc(
		"Length of a string or list; other values are converted to a list first.",
		[]ParamDoc{{"value", "String, list or convertible value."}},
		"integer",
	),
	"D": NewDoc(
		"Writes the debugging representation of a value and returns the value.",
		[]ParamDoc{{"value", "Any value except a block."}},
		"any",
	),
	"O": NewDoc(
		"Writes a value followed by a newline. A trailing backslash is removed and suppresses the newline.",
		[]ParamDoc{{"value", "Coerced to string."}},
		"null",
	),
	"A": NewDoc(
		"Converts an integer to the character with that code point, or a string to the code point of its first character.",
		[]ParamDoc{{"value", "Integer or non-empty string."}},
		"string | integer",
	),
	",": NewDoc("Wraps a value in a one-element list.", []ParamDoc{{"value", "Any value."}}, "list"),
	"[": NewDoc("First character of a string or first element of a list.", []ParamDoc{{"value", "Non-empty string or list."}}, "any"),
	"]": NewDoc("Everything after the first character or element.", []ParamDoc{{"value", "Non-empty string or list."}}, "string | list"),

	"+": NewDoc(
		"Adds integers, concatenates strings or concatenates lists, depending on the first argument.",
		[]ParamDoc{{"lhs", "Integer, string or list."}, {"rhs", "Converted to the type of lhs."}},
		"integer | string | list",
	),
	"-": NewDoc(
		"Subtracts integers.",
		[]ParamDoc{{"lhs", "Integer."}, {"rhs", "Coerced to integer."}},
		"integer",
	),
	"*": NewDoc(
		"Multiplies integers, or repeats a string or list.",
		[]ParamDoc{{"lhs", "Integer, string or list."}, {"rhs", "Coerced to integer; must not be negative for repetition."}},
		"integer | string | list",
	),
	"/": NewDoc(
		"Integer division truncating toward zero. Dividing by zero is a domain error.",
		[]ParamDoc{{"lhs", "Integer."}, {"rhs", "Coerced to a non-zero integer."}},
		"integer",
	),
	"%": NewDoc(
		"Remainder of integer division. A zero divisor is a domain error.",
		[]ParamDoc{{"lhs", "Integer."}, {"rhs", "Coerced to a non-zero integer."}},
		"integer",
	),
	"^": NewDoc(
		"Raises an integer to a power, or joins a list with a separator.",
		[]ParamDoc{{"lhs", "Integer or list."}, {"rhs", "Exponent or separator."}},
		"integer | string",
	),
	"<": NewDoc(
		"Whether the first argument sorts before the second, compared using the first argument's type.",
		[]ParamDoc{{"lhs", "Integer, string, boolean or list."}, {"rhs", "Converted to the type of lhs."}},
		"boolean",
	),
	">": NewDoc(
		"Whether the first argument sorts after the second, compared using the first argument's type.",
		[]ParamDoc{{"lhs", "Integer, string, boolean or list."}, {"rhs", "Converted to the type of lhs."}},
		"boolean",
	),
	"?": NewDoc(
		"Structural equality without conversion.",
		[]ParamDoc{{"lhs", "Any value."}, {"rhs", "Any value."}},
		"boolean",
	),
	"G": NewDoc(
		"Substring or sublist.",
		[]ParamDoc{{"collection", "String or list."}, {"start", "First index. With extensions a negative index counts from the end."}, {"length", "Number of elements."}},
		"string | list",
	),
	"S": NewDoc(
		"Returns a copy with a range replaced.",
		[]ParamDoc{{"collection", "String or list."}, {"start", "First index. With extensions a negative index counts from the end."}, {"length", "Number of elements replaced."}, {"replacement", "Converted to the collection's type."}},
		"string | list",
	),

	"V": NewDoc(
		"Reads the variable whose name is given as a string.",
		[]ParamDoc{{"name", "Coerced to string."}},
		"any",
	),
	"H": NewDoc(
		"Evaluates the first argument; if it raises a runtime error, stores the message in _ and evaluates the second instead. QUIT is never caught.",
		[]ParamDoc{{"body", "Expression that may fail."}, {"handler", "Expression run on failure."}},
		"any",
	),
	"Y": NewDoc(
		"Raises a runtime error with the given message.",
		[]ParamDoc{{"message", "Coerced to string."}},
		"never",
	),
	"E": NewDoc(
		"Compiles a string as a program and runs it with the current variables. Blocks it defines remain callable.",
		[]ParamDoc{{"source", "Program text, coerced to string."}},
		"any",
	),
	"U": NewDoc(
		"Reads a source file through the host and runs it with the current variables, like EVAL.",
		[]ParamDoc{{"path", "File name, coerced to string."}},
		"any",
	),
	"XSRAND": NewDoc(
		"Seeds RANDOM.",
		[]ParamDoc{{"seed", "Coerced to integer."}},
		"null",
	),
	"XRANGE": NewDoc(
		"List of the integers from start up to but excluding stop.",
		[]ParamDoc{{"start", "Coerced to integer."}, {"stop", "Coerced to integer, not less than start."}},
		"list",
	),
	"XREVERSE": NewDoc(
		"Reverses a string or list.",
		[]ParamDoc{{"value", "String or list."}},
		"string | list",
	),
}
