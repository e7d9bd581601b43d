// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

type Id int

const (
	NoInputId Id = iota + 1
	ScriptNotReadableId
	ConfigLoadFailedId
	ToolsDirUnreadableId
	CapabilityNotFoundId
	CapabilityLoadFailedId
	ShellNotFoundId
	ServeStartFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue as terminal markdown. An empty stylePath picks
// the glamour style that matches the terminal background.
func (i *Issue) Render(stylePath string) (string, error) {
	var extra strings.Builder
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extra.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			extra.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			extra.WriteString("- <" + string(link) + ">\n")
		}
	}
	if stylePath == "" {
		stylePath = "auto"
	}
	return render(string(i.mdMsg)+extra.String(), stylePath)
}

var (
	render = glamour.Render

	noInputIssue = &Issue{
		id: NoInputId,
		mdMsg: `
# No script provided!

ptc reads the script from standard input when no file is given, and the input was empty.

## Things you can try:
- Pipe the script on stdin:
~~~
$ ptc run <<'JS'
const files = await capabilities.fs.glob({pattern: "**/*.go"});
return files.count;
JS
~~~

- Or pass a file:
~~~
$ ptc run task.js
~~~`,
	}

	scriptNotReadableIssue = &Issue{
		id: ScriptNotReadableId,
		mdMsg: `
# Could not read the script!

The script file does not exist or cannot be read.

## Things you can try:
- Check the path and the file permissions
- Use ` + "`-`" + ` to read the script from stdin`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file is invalid or an environment override has a bad value.

## Things you can try:
- Print where ptc looks for its configuration:
~~~
$ ptc config path
~~~

- Compare your file with the defaults:
~~~
$ ptc config show
~~~

- Check ` + "`PTC_*`" + ` environment variables for typos

## Example config.cue:
~~~cue
tools_dir: ".ptc/tools"
process: runtime: "virtual"
log: level: "info"
~~~`,
	}

	toolsDirUnreadableIssue = &Issue{
		id: ToolsDirUnreadableId,
		mdMsg: `
# Tools directory cannot be read!

Fallback capabilities live in ` + "`<tools_dir>/<namespace>/<method>.sh`" + `, but the directory could not be listed.

## Things you can try:
- Check that the directory exists and is readable
- Point ptc at another directory:
~~~
$ ptc run --tools-dir ./tools task.js
~~~`,
	}

	capabilityNotFoundIssue = &Issue{
		id: CapabilityNotFoundId,
		mdMsg: `
# Capability not found!

The capability has no built-in implementation and no fallback script.

## Things you can try:
- List what is available:
~~~
$ ptc capabilities
~~~

- Add a script that reads JSON on stdin and prints JSON on stdout:
~~~
$ mkdir -p .ptc/tools/notes
$ cat > .ptc/tools/notes/add.sh <<'SH'
input=$(cat)
echo "{\"saved\": true}"
SH
~~~`,
	}

	capabilityLoadFailedIssue = &Issue{
		id: CapabilityLoadFailedId,
		mdMsg: `
# Capability failed to load!

A fallback script was found but it does not parse as a shell script.

## Things you can try:
- Check the script with ` + "`bash -n <path>`" + `
- Make sure the path is a file and not a directory`,
	}

	shellNotFoundIssue = &Issue{
		id: ShellNotFoundId,
		mdMsg: `
# Shell not found!

The native runtime spawns fallback scripts with the configured shell, which is not on your PATH.

## Things you can try:
- Install bash or set another shell:
~~~cue
process: shell: "sh"
~~~

- Use the built-in interpreter instead:
~~~cue
process: runtime: "virtual"
~~~`,
	}

	serveStartFailedIssue = &Issue{
		id: ServeStartFailedId,
		mdMsg: `
# Failed to start the SSH server!

## Things you can try:
- Check that the address is free, or choose another one:
~~~
$ ptc serve --address localhost:2223
~~~

- Check that the host key path is writable`,
	}

	issues = map[Id]*Issue{
		noInputIssue.Id():              noInputIssue,
		scriptNotReadableIssue.Id():    scriptNotReadableIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		toolsDirUnreadableIssue.Id():   toolsDirUnreadableIssue,
		capabilityNotFoundIssue.Id():   capabilityNotFoundIssue,
		capabilityLoadFailedIssue.Id(): capabilityLoadFailedIssue,
		shellNotFoundIssue.Id():        shellNotFoundIssue,
		serveStartFailedIssue.Id():     serveStartFailedIssue,
	}
)

func Values() []*Issue {
	v := maps.Values(issues)
	slices.SortFunc(v, func(a, b *Issue) int { return int(a.id - b.id) })
	return v
}

func Get(id Id) *Issue {
	return issues[id]
}
