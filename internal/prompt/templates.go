package prompt

const fieldsFiltersPivotsSortsTemplate = `Act as Looker SDK expert, taking into consideration how to run the create_query API with IWriteQuery parameters.
Given the context and natural language question, follow the instructions.

Context: {{serializedModelFields}}
Question: {{userInput}}

1. Extract the exact fields names, filters and sorts from the Context in a JSON format that can help answer the Question.
2. The fields are in the format "table.field".
3. If the Question contains a "top", "bottom", insert a "count" inside the fields.
4. Make sure to select the minimum amount of field_names needed to answer the question.
5. Put all the sortings inside sort array.
6. field_names only contains a list of field_names with the format "table.field".
7. limit is string and default value is "500" if empty.
8. Filters have the syntax from Looker.
9. Only add pivot columns to the output if the word "pivot" or verb "pivoting" is mentioned inside the question.

JSON output format has only the following keys
{
"field_names": [],
"filters": {},
"sorts": [],
"pivots": [],
"limit": "500"
}

Examples:
Q: "What are the top 10 total sales price per brand. With brands: Levi's, Calvin Klein, Columbia"
{"field_names":["products.brand","order_items.total_sale_price"],"filters":{"products.brand":"Levi's, Calvin Klein, Columbia"},"limit":"10"}

Q: "How many orders were created in the past 7 days"
{"field_names":["orders.count"],"filters":{"order_items.created_at_date":"7 days"},"sorts":[]}

Q: "What are the top 7 brands that had the most sales price in the last 4 months?"
{"field_names":["products.brand","order_items.total_sale_price"],"filters":{"order_items.created_at_date":"4 months"},"pivots":[],"sorts":["order_items.total_sale_price desc"],"limit":"7"}

Your response should be ONLY the raw JSON output.
`

const pivotsTemplate = `Potential fields: {{potentialFields}}
Question: {{userInput}}

Pick from the potential fields only the ones the Question asks to pivot on.
Return ONLY the raw JSON {"pivots": []}. Return an empty array when the Question does not ask for a pivot.
`

const limitsTemplate = `Question: {{userInput}}

Extract the maximum number of rows the Question asks for, for example 10 for "top 10".
Return ONLY the integer. Return 500 when the Question does not ask for a specific number of rows.
`

const mergeValidateTemplate = `Context: {{mergedResults}}
The Context provided contains all the possible field_names, filters, pivots and sorts.
Return the JSON with only the fields needed to answer the following Question.
The output format is a valid JSON: {"field_names": [], "filters": {}, "pivots": [], "sorts": []}
Question: {{userInput}}
`

const dashboardSummarizeTemplate = `Act as an experienced Data Analyst, reading a Dashboard with a Tile Context, the Input Data and answer the Question below.
Tile Context: {{tileContext}}
InputData: {{serializedModelFields}}
Question: {{userInput}}
Summarize InputData keeping only what is needed to answer the Question. Return ONLY the summary as raw JSON.
`

const explorationOutputTemplate = `InputData: {{serializedModelFields}}
Consider InputData as the answer to the Question below. Just translate InputData to natural language.
Question: {{userInput}}
`

var defaultTemplates = map[TaskType]string{
	FieldsFiltersPivotsSorts: fieldsFiltersPivotsSortsTemplate,
	Pivots:                   pivotsTemplate,
	Limits:                   limitsTemplate,
	MergeValidate:            mergeValidateTemplate,
	DashboardSummarize:       dashboardSummarizeTemplate,
	ExplorationOutput:        explorationOutputTemplate,
}
