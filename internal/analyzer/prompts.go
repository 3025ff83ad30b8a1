package analyzer

const defaultAnalysisPrompt = `You are looking at a screenshot of someone's desktop.
Reply with a single JSON object and nothing else:

{
  "activity_type": "work | study | leisure | other",
  "application": "name of the main application in focus",
  "description": "one sentence describing what the user is doing",
  "content_summary": "short summary of the visible content"
}

Pick activity_type from the four values only. If unsure, use "other".`

const defaultSummaryPrompt = `You write short activity reports from screenshot analysis logs.
Summarize what the user spent the period on, in plain prose, highlighting the main
tasks and how time was split between work, study and leisure. Use Markdown for
lists where helpful. Do not invent activities that are not in the log.`
