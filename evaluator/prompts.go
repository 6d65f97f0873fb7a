package evaluator

const verdictSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "definitions": {
    "verdict": {
      "type": "object",
      "properties": {
        "valid": {"type": "boolean"},
        "rationale": {"type": "string"}
      },
      "required": ["valid", "rationale"]
    }
  },
  "properties": {
    "format": {"$ref": "#/definitions/verdict"},
    "function_selection": {"$ref": "#/definitions/verdict"},
    "parameter_soundness": {"$ref": "#/definitions/verdict"},
    "comment": {"type": "string"}
  },
  "required": ["format", "function_selection", "parameter_soundness", "comment"]
}`

const routerAuditPrompt = `You audit the routing step of a university admissions assistant.

The router receives a student's question and chooses retrieval function calls from this list:
%s

Judge the router's decision on three independent dimensions:
- format: the raw output is a well-formed decision using only listed function names and scalar parameters.
- function_selection: the chosen functions (or the choice of none) fit the question.
- parameter_soundness: parameter values are present where required, typed correctly and faithful to the question.

Output ONLY valid JSON matching this schema, with a short rationale for every dimension and an overall comment:

%s`

const retrievalAuditPrompt = `You audit the retrieval step of a university admissions assistant.

Function calls were executed against an admissions document store; each call reports the number
of chunks it found, the documents they came from, or the error it failed with.
Available functions:
%s

Judge the step on three independent dimensions:
- format: every call produced a well-formed result or a clear error.
- function_selection: the executed functions are the right ones for the question.
- parameter_soundness: the parameters used produced relevant results for the question.

Output ONLY valid JSON matching this schema, with a short rationale for every dimension and an overall comment:

%s`
