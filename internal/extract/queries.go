package extract

// Tree-sitter pattern queries against the JavaScript grammar. The TypeScript
// grammar produces the same node kinds for these constructs, so the same
// patterns serve both.

// functionQuery matches the four function definition forms: named
// declaration, variable-bound function/arrow expression, member assignment
// (obj.prop = function(){}), and method definition. The name capture and the
// definition capture differ for the middle two forms; the extractor walks
// the declarator up to its enclosing statement to find the definitive span.
const functionQuery = `
[
  (function_declaration name: (identifier) @function.name) @function.definition
  (variable_declarator
    name: (identifier) @function.name
    value: [ (function_expression) (arrow_function) ] @function.value
  ) @function.definition
  (expression_statement
    (assignment_expression
      left: (member_expression property: (property_identifier) @function.name)
      right: [ (function_expression) (arrow_function) ] @function.value
    )
  ) @function.definition
  (method_definition name: (property_identifier) @function.name) @function.definition
]
`

// callQuery matches call expressions with an identifier, member-access, or
// super callee.
const callQuery = `
(call_expression
  function: [
    (identifier) @call.target
    (member_expression property: (property_identifier) @call.target.member) @call.target.expression
    (super) @call.target
  ]
  arguments: (arguments) @call.arguments
) @call.expression
`

// requireQuery matches both CommonJS import forms. Pattern 0 is the bare
// call; pattern 1 is the assignment form. The bare pattern also matches the
// call inside an assignment, so the extractor skips pattern-0 matches whose
// parent is a variable_declarator. The callee name is verified in Go rather
// than with an #eq? predicate.
const requireQuery = `
(call_expression
  function: (identifier) @require.func
  arguments: (arguments (string) @require.path)
) @require.call

(variable_declarator
  name: (identifier) @require.variable
  value: (call_expression
    function: (identifier) @require.func
    arguments: (arguments (string) @require.path)
  )
) @require.assignment
`

// variableQuery matches const/let (lexical_declaration) and var
// (variable_declaration) declarators. The declaration keyword is read from
// the declaration node's first token, since only lexical_declaration carries
// a "kind" field in the grammar.
const variableQuery = `
(lexical_declaration
  (variable_declarator
    name: (identifier) @variable.name
    value: (_)? @variable.value
  )
) @variable.declaration

(variable_declaration
  (variable_declarator
    name: (identifier) @variable.name
    value: (_)? @variable.value
  )
) @variable.declaration
`
