package router

import (
	"fmt"

	"github.com/poiesic/admissions/core"
)

const decisionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "function_calls": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "params": {
            "type": "object",
            "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
          }
        },
        "required": ["name", "params"]
      }
    }
  },
  "required": ["function_calls"]
}`

const routerPromptTemplate = `You route questions about university admissions to retrieval functions.

Decide which of the functions below, if any, are needed to answer the user's latest message.
Choose zero, one or several calls. Choose none for greetings, thanks or questions you can
answer from the conversation alone. Use several calls when the question spans several
universities or topics, one call per university or topic.

Functions:
%s

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble,
explanation, greeting, or acknowledgment. Start your response directly with the opening brace {
and end with the closing brace }. Your output must exactly follow this schema:

%s

Rules:
- Use only the function names listed above.
- Parameter values must be strings or numbers. Never nest objects or arrays.
- Always include every required parameter. Omit optional parameters you cannot infer.
- Copy university and department names as the user wrote them.
- If no function is needed, return {"function_calls": []}.

Example:
Input: "What grade do I need for Yonsei business, and when is the application deadline?"
Output:
{
  "function_calls": [
    {"name":"univ_search","params":{"university":"Yonsei University","department":"Business","query":"required grade"}},
    {"name":"admission_guide","params":{"topic":"application deadline"}}
  ]
}

Example:
Input: "thanks!"
Output:
{"function_calls": []}`

func buildSystemPrompt() string {
	return fmt.Sprintf(routerPromptTemplate, core.DescribeCapabilities(), decisionSchema)
}
