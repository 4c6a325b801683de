package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/akolk/loki-nexus2/storage"
)

var codeInstructions = strings.Join([]string{
	"You are a helpful data science assistant.",
	"Your goal is to help the user analyze data and answer questions by returning executable Starlark code.",
	"Your final reply MUST be a single JSON object matching the schema below, with no other text.",
	"The `code` field MUST contain valid Starlark code.",
	"When your code executes, it MUST define a variable named `result` which is a dict: {'type': '...', 'content': '...'}.",
	"Valid types are: 'dataframe', 'picture', 'html', 'plotly', 'folium'.",
	"Inside the code you can call query(sql) to get rows as a list of dicts, read_file(path), write_file(path, content), and use the json and math modules.",
	"You have access to the database via the `data_query` tool if you need to inspect data while planning.",
	"You can also read and write files in your workspace.",
	"When querying data, always consider performance and use LIMIT clauses if not specified.",
	"If the data contains coordinates in RD (EPSG:28992), they are transformed to WGS84 automatically and returned as wgs84_lon and wgs84_lat.",
	"Adapt your communication style to the user's preference in the `disclaimer` or `followup`.",
}, " ")

var reportInstructions = strings.Join([]string{
	"You are an expert Deep Research agent.",
	"Your goal is to perform in-depth data analysis, generate a structured report in the user's requested format,",
	"and save this report to the workspace using the `write_file_content` tool.",
	"The data is available via the `data_query` tool, which handles EPSG:28992 coordinates to WGS84 mapping.",
	"When your analysis is complete, formulate your final report, write it to a file with a suitable extension based on the requested format (e.g. .md, .html),",
	"and reply with a single JSON object matching the schema below containing a summary and the report_path where you saved the file.",
	"Always make sure to do the research comprehensively!",
}, " ")

func systemPrompt(instructions, schema string, profile storage.Profile) string {
	return fmt.Sprintf("%s\n\nResponse schema:\n%s\n\n%s", instructions, schema, profileLine(profile))
}

func profileLine(p storage.Profile) string {
	prefs := "{}"
	if len(p.Preferences) > 0 {
		if b, err := json.Marshal(p.Preferences); err == nil {
			prefs = string(b)
		}
	}
	style := p.Style
	if style == "" {
		style = storage.DefaultStyle
	}
	return fmt.Sprintf("User Preferences: %s. Communication Style: %s.", prefs, style)
}

// annotate appends the map viewport to the query text.
func annotate(query, viewport string) string {
	if viewport == "" {
		return query
	}
	return fmt.Sprintf("%s\n\n[Map viewport: %s]", query, viewport)
}

func enrichReportQuery(query, format string) string {
	return fmt.Sprintf("Task: %s\n\nPlease output the final report in the following format: %s", query, format)
}
