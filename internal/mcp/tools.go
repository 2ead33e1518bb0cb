package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
)

var mergeToolDef = mcp.NewTool("mel_merge",
	mcp.WithDescription("Merge injects into a session's MEL. Existing injects are matched by id, then by Number; "+
		"matched injects take the non-empty incoming fields and unmatched ones are appended. "+
		"Creates the session when it does not exist."),
	mcp.WithString("session_id",
		mcp.Description("Session to update. A new session is created when omitted"),
	),
	mcp.WithArray("injects",
		mcp.Required(),
		mcp.Description("Injects to add or update"),
		mcp.Items(mel.InjectSchema()),
	),
)

var replaceToolDef = mcp.NewTool("mel_replace",
	mcp.WithDescription("Replace a session's MEL with a complete, ordered inject list. Injects not sent are removed."),
	mcp.WithString("session_id",
		mcp.Description("Session to update. A new session is created when omitted"),
	),
	mcp.WithArray("injects",
		mcp.Required(),
		mcp.Description("The complete inject list"),
		mcp.Items(mel.InjectSchema()),
	),
)

var editToolDef = mcp.NewTool("mel_edit",
	mcp.WithDescription("Save a hand-edited inject list as a new user_edit version. "+
		"mel_id must be the id of the session's current MEL."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("mel_id", mcp.Required(), mcp.Description("Id of the MEL being edited")),
	mcp.WithArray("injects",
		mcp.Required(),
		mcp.Description("The full edited inject list"),
		mcp.Items(mel.InjectSchema()),
	),
)

var getToolDef = mcp.NewTool("mel_get",
	mcp.WithDescription("Fetch a session: its messages, current MEL, and optionally its version history."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithBoolean("include_history", mcp.Description("Include full version history (default true)")),
)

var historyToolDef = mcp.NewTool("mel_history",
	mcp.WithDescription("List the MEL versions recorded for a session with their provenance."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithBoolean("include_documents", mcp.Description("Include each version's full MEL")),
)

var exportToolDef = mcp.NewTool("mel_export",
	mcp.WithDescription("Write a session's current MEL to a JSON or YAML file under ~/.melchat/exports or an allowed path."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("path", mcp.Description("Output file path. Defaults to ~/.melchat/exports/<session>-<timestamp>.<format>")),
	mcp.WithString("format",
		mcp.Description("Output format when path has no extension"),
		mcp.Enum("json", "yaml"),
	),
)

var importToolDef = mcp.NewTool("mel_import",
	mcp.WithDescription("Load a JSON or YAML MEL file into a session, replacing its current MEL."),
	mcp.WithString("path", mcp.Required(), mcp.Description("File to import")),
	mcp.WithString("session_id", mcp.Description("Target session. Defaults to the session recorded in the file")),
)

var listToolDef = mcp.NewTool("session_list",
	mcp.WithDescription("List sessions, most recently active first."),
	mcp.WithNumber("limit", mcp.Description("Max results (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Results to skip")),
)

var deleteToolDef = mcp.NewTool("session_delete",
	mcp.WithDescription("Delete a session and its MEL history."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var purgeToolDef = mcp.NewTool("session_purge",
	mcp.WithDescription("Delete sessions idle for more than the given number of days."),
	mcp.WithNumber("older_than_days", mcp.Required(), mcp.Description("Idle threshold in days")),
)
