package summarizer

import "github.com/hitoshi/briefly/internal/model"

// systemPrompts はコンテンツ種別ごとのシステム指示。
var systemPrompts = map[model.ContentType]string{
	model.ContentTypeCode: "You are a code summarisation tool. Understand the given code and output the summary of the code. " +
		"It should include all details including the input, logic and output of the code. Mention any potential errors at the end.",
	model.ContentTypeResearch: "You are a research article summarisation tool. Go through the research article or excerpt given to you and summarize it. " +
		"Make sure to include all the important findings in the article. Be as technical as you can be.",
	model.ContentTypeDocumentation: "You are a summarisation tool. You will be given a piece of text that you should summarize.",
}

// formatInstruction は応答をJSONオブジェクトに固定するための指示。
const formatInstruction = `Respond with a single JSON object and nothing else. ` +
	`The object must have exactly two string fields: "Title" (a short descriptive title) and "Summary" (the summary itself). ` +
	`Example shape: {"Title": "...", "Summary": "..."}`

// fewShotExample は出力形式の例示。内容は流用させない。
const fewShotExample = `The following is an example of the expected output format only. Do not reuse this content in your answer.
Input: def greet(name): return "Hello, " + name
Output: {"Title": "Greeting helper", "Summary": "Defines greet(name), which takes a name string and returns it prefixed with \"Hello, \". Potential errors: passing a non-string raises a TypeError."}`

// regenerateInstruction は再生成時にフィードバックへ添える指示。
const regenerateInstruction = `Revise your previous summary using the feedback below. ` +
	`Keep the same JSON format with "Title" and "Summary" fields.`

// systemPrompt はコンテンツ種別に対応するシステム指示を返す。
func systemPrompt(ct model.ContentType) (string, bool) {
	p, ok := systemPrompts[ct]
	return p, ok
}
