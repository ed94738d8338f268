package cli

import (
	"fmt"
	"io"
	"strings"
)

// FlagCompletion describes a CLI flag for shell completion generation.
// All shell completion functions generate from this registry, so adding
// a new flag only requires appending to flagRegistry.
type FlagCompletion struct {
	Long      string   // long flag name without "--" (e.g., "help")
	Short     string   // short flag without "-" (e.g., "h")
	Help      string   // description text
	Values    []string // suggested completion values (nil = boolean/no suggestions)
	ValueName string   // label for the value in zsh (e.g., "count", "duration")
	IsFile    bool     // true if the flag takes a file path
	IsNode    bool     // true if values come from the node registry (dynamic)
	BashGroup string   // flags with same non-empty BashGroup share a bash case entry
}

// flagRegistry is the central list of all CLI flags for completion generation.
var flagRegistry = []FlagCompletion{
	{Long: "help", Short: "h", Help: "Show help message"},
	{Long: "version", Short: "V", Help: "Show version information"},
	{Long: "node", Help: "Calibration node to run", IsNode: true, ValueName: "node"},
	{Long: "qubits", Help: "Comma-separated qubit names", ValueName: "qubits"},
	{Long: "shots", Help: "Averaging shots per sweep point", Values: []string{"100", "200", "500", "1000"}, ValueName: "count"},
	{Long: "timeout", Help: "Maximum run duration", Values: []string{"30s", "1m", "5m", "10m"}, ValueName: "duration"},
	{Long: "min-wait", Help: "Shortest idle time in ns", Values: []string{"16", "100", "1000"}, ValueName: "ns", BashGroup: "wait"},
	{Long: "max-wait", Help: "Longest idle time in ns", Values: []string{"10000", "120000", "500000"}, ValueName: "ns", BashGroup: "wait"},
	{Long: "wait-points", Help: "Number of idle-time points", ValueName: "count"},
	{Long: "state", Help: "Machine state JSON file", IsFile: true, ValueName: "file"},
	{Long: "store", Help: "Calibration snapshot database", IsFile: true, ValueName: "file"},
	{Long: "output-dir", Help: "Run artifact directory", IsFile: true, ValueName: "dir"},
	{Long: "load-data-id", Help: "Re-analyse a stored run", ValueName: "id"},
	{Long: "output", Short: "o", Help: "Run summary file path", IsFile: true, ValueName: "file"},
	{Long: "simulate", Help: "Use the built-in simulator"},
	{Long: "list", Help: "List available calibration nodes"},
	{Long: "init-state", Help: "Write a default machine state file"},
	{Long: "tui", Help: "Interactive dashboard during the run"},
	{Long: "interactive", Help: "Interactive calibration shell"},
	{Long: "metrics-listen", Help: "Prometheus metrics address", ValueName: "addr"},
	{Long: "log-level", Help: "Log level", Values: []string{"debug", "info", "warn", "error"}, ValueName: "level"},
	{Long: "quiet", Short: "q", Help: "Quiet mode for scripts"},
	{Long: "no-plot", Help: "Skip figure rendering"},
	{Long: "completion", Help: "Generate completion script", Values: []string{"bash", "zsh", "fish", "powershell"}, ValueName: "shell"},
}

// bashGroupValues defines the completion values used in bash for grouped flags.
// Flags sharing the same BashGroup use these values in the bash case statement.
var bashGroupValues = map[string][]string{
	"wait": {"16", "100", "1000", "10000", "120000"},
}

// zshHelpOverrides provides shell-specific help text overrides for zsh.
// Some flags have slightly different descriptions in zsh's _arguments format.
var zshHelpOverrides = map[string]string{
	"qubits": "Qubit names, comma separated",
	"store":  "Snapshot database path",
}

// GenerateCompletion generates a shell completion script for the specified shell.
// nodes is the list of registered calibration node names.
func GenerateCompletion(out io.Writer, shell string, nodes []string) error {
	switch shell {
	case "bash":
		return generateBashCompletion(out, nodes)
	case "zsh":
		return generateZshCompletion(out, nodes)
	case "fish":
		return generateFishCompletion(out, nodes)
	case "powershell", "ps":
		return generatePowerShellCompletion(out, nodes)
	default:
		return fmt.Errorf("unsupported shell: %s (accepted values: bash, zsh, fish, powershell)", shell)
	}
}

// formatNodeList joins node names with space separators.
func formatNodeList(nodes []string) string {
	return strings.Join(nodes, " ")
}

// flagKey returns the identifier used for lookups: Long name if present, else Short.
func flagKey(f FlagCompletion) string {
	if f.Long != "" {
		return f.Long
	}
	return f.Short
}

// generateBashCompletion generates a Bash completion script.
func generateBashCompletion(out io.Writer, nodes []string) error {
	// Build opts string from registry
	var opts []string
	for _, f := range flagRegistry {
		if f.Long != "" {
			opts = append(opts, "--"+f.Long)
		}
		if f.Short != "" {
			opts = append(opts, "-"+f.Short)
		}
	}

	// Build case entries from registry.
	// Order: node, completion, file, remaining value flags, grouped flags.
	type caseEntry struct {
		patterns []string
		body     string
	}
	bashCaseEntry := func(f FlagCompletion) caseEntry {
		return caseEntry{
			patterns: []string{"--" + f.Long},
			body:     fmt.Sprintf(`COMPREPLY=( $(compgen -W "%s" -- "${cur}") )`, strings.Join(f.Values, " ")),
		}
	}
	var orderedCases []caseEntry

	// 1. Node flags
	for _, f := range flagRegistry {
		if f.IsNode {
			orderedCases = append(orderedCases, caseEntry{
				patterns: []string{"--" + f.Long},
				body:     `COMPREPLY=( $(compgen -W "${nodes}" -- "${cur}") )`,
			})
		}
	}

	// 2. Completion flag (static values, comes before file/timeout)
	for _, f := range flagRegistry {
		if f.Long == "completion" && len(f.Values) > 0 {
			orderedCases = append(orderedCases, bashCaseEntry(f))
		}
	}

	// 3. File completion flags
	var filePatterns []string
	for _, f := range flagRegistry {
		if f.IsFile {
			if f.Long != "" {
				filePatterns = append(filePatterns, "--"+f.Long)
			}
			if f.Short != "" {
				filePatterns = append(filePatterns, "-"+f.Short)
			}
		}
	}
	if len(filePatterns) > 0 {
		orderedCases = append(orderedCases, caseEntry{
			patterns: filePatterns,
			body: `# File/directory completion
            COMPREPLY=( $(compgen -f -- "${cur}") )`,
		})
	}

	// 4. Remaining flags with static values (non-node, non-file, non-grouped, non-completion)
	for _, f := range flagRegistry {
		if !f.IsNode && !f.IsFile && f.BashGroup == "" && f.Long != "completion" && len(f.Values) > 0 {
			orderedCases = append(orderedCases, bashCaseEntry(f))
		}
	}

	// 5. Grouped flags (wait group)
	seenGroups := map[string]bool{}
	for _, f := range flagRegistry {
		if f.BashGroup != "" && !seenGroups[f.BashGroup] {
			seenGroups[f.BashGroup] = true
			var patterns []string
			for _, gf := range flagRegistry {
				if gf.BashGroup == f.BashGroup {
					patterns = append(patterns, "--"+gf.Long)
				}
			}
			vals := bashGroupValues[f.BashGroup]
			orderedCases = append(orderedCases, caseEntry{
				patterns: patterns,
				body:     fmt.Sprintf(`COMPREPLY=( $(compgen -W "%s" -- "${cur}") )`, strings.Join(vals, " ")),
			})
		}
	}

	// Format case entries
	var caseBody strings.Builder
	for _, c := range orderedCases {
		caseBody.WriteString("        ")
		caseBody.WriteString(strings.Join(c.patterns, "|"))
		caseBody.WriteString(")\n")
		caseBody.WriteString("            ")
		caseBody.WriteString(c.body)
		caseBody.WriteString("\n            return 0\n            ;;\n")
	}

	nodeList := formatNodeList(nodes)

	script := fmt.Sprintf(`# Bash completion script for qcal
# Add this to your ~/.bashrc or ~/.bash_completion

_qcal_completions() {
    local cur prev opts nodes
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    # Main options
    opts="%s"

    # Available calibration nodes
    nodes="%s"

    case "${prev}" in
%s    esac

    if [[ "${cur}" == -* ]]; then
        COMPREPLY=( $(compgen -W "${opts}" -- "${cur}") )
        return 0
    fi
}

complete -F _qcal_completions qcal
`, strings.Join(opts, " "), nodeList, caseBody.String())

	_, err := fmt.Fprint(out, script)
	if err != nil {
		return fmt.Errorf("completion bash generation failed: %w", err)
	}
	return nil
}

// generateZshCompletion generates a Zsh completion script.
func generateZshCompletion(out io.Writer, nodes []string) error {
	// Build _arguments entries from registry
	var args []string
	for _, f := range flagRegistry {
		args = append(args, zshArgEntry(f))
	}

	nodeList := formatNodeList(nodes)

	script := fmt.Sprintf(`#compdef qcal

# Zsh completion script for qcal
# Add this to your ~/.zshrc or place in $fpath

_qcal() {
    local -a nodes
    nodes=(%s)

    _arguments -s \
%s
}

_qcal "$@"
`, nodeList, strings.Join(args, " \\\n"))

	_, err := fmt.Fprint(out, script)
	if err != nil {
		return fmt.Errorf("completion zsh generation failed: %w", err)
	}
	return nil
}

// zshHelp returns the help text for a flag in zsh, using an override if available.
func zshHelp(f FlagCompletion) string {
	key := flagKey(f)
	if override, ok := zshHelpOverrides[key]; ok {
		return override
	}
	return f.Help
}

// zshArgEntry formats a single FlagCompletion as a zsh _arguments entry.
func zshArgEntry(f FlagCompletion) string {
	help := zshHelp(f)

	// Build the value suffix
	valueSuffix := ""
	if f.IsFile {
		valueSuffix = fmt.Sprintf(":%s:_files", f.ValueName)
	} else if f.IsNode {
		valueSuffix = fmt.Sprintf(":%s:($nodes)", f.ValueName)
	} else if len(f.Values) > 0 {
		valueSuffix = fmt.Sprintf(":%s:(%s)", f.ValueName, strings.Join(f.Values, " "))
	} else if f.ValueName != "" {
		// Value-taking flag with no suggestions (e.g., --qubits)
		valueSuffix = fmt.Sprintf(":%s:", f.ValueName)
	}

	if f.Long != "" && f.Short != "" {
		// Has both short and long form
		return fmt.Sprintf("        '(-%s --%s)'{-%s,--%s}'[%s]%s'",
			f.Short, f.Long, f.Short, f.Long, help, valueSuffix)
	}
	if f.Long != "" {
		return fmt.Sprintf("        '--%s[%s]%s'", f.Long, help, valueSuffix)
	}
	// Short only
	return fmt.Sprintf("        '-%s[%s]%s'", f.Short, help, valueSuffix)
}

// generateFishCompletion generates a Fish completion script.
func generateFishCompletion(out io.Writer, nodes []string) error {
	var lines []string

	lines = append(lines, "# Fish completion script for qcal")
	lines = append(lines, "# Add this to ~/.config/fish/completions/qcal.fish")
	lines = append(lines, "")
	lines = append(lines, "# Disable file completion by default")
	lines = append(lines, "complete -c qcal -f")
	lines = append(lines, "")

	// Group flags into sections for comments.
	type section struct {
		comment string
		flags   []FlagCompletion
	}

	sections := []section{
		{comment: "# Help and version", flags: filterFlags("help", "version")},
		{comment: "# Run selection", flags: filterFlags("node", "qubits", "shots", "timeout", "min-wait", "max-wait", "wait-points", "simulate")},
		{comment: "# State and artifacts", flags: filterFlags("state", "store", "output-dir", "load-data-id", "output")},
		{comment: "# Modes", flags: filterFlags("list", "init-state", "tui", "interactive", "metrics-listen")},
		{comment: "# Output options", flags: filterFlags("quiet", "no-plot", "log-level")},
		{comment: "# Completion", flags: filterFlags("completion")},
	}

	nodeList := formatNodeList(nodes)

	for _, sec := range sections {
		lines = append(lines, sec.comment)
		for _, f := range sec.flags {
			lines = append(lines, fishCompleteLine(f, nodeList))
		}
		lines = append(lines, "")
	}

	script := strings.Join(lines, "\n")

	_, err := fmt.Fprint(out, script)
	if err != nil {
		return fmt.Errorf("completion fish generation failed: %w", err)
	}
	return nil
}

// filterFlags returns flags from the registry matching the given identifiers.
// An identifier is a Long name, or "X_short" to match a flag by Short name only.
func filterFlags(ids ...string) []FlagCompletion {
	var result []FlagCompletion
	for _, id := range ids {
		if strings.HasSuffix(id, "_short") {
			short := strings.TrimSuffix(id, "_short")
			for _, f := range flagRegistry {
				if f.Short == short && f.Long == "" {
					result = append(result, f)
					break
				}
			}
		} else {
			for _, f := range flagRegistry {
				if f.Long == id {
					result = append(result, f)
					break
				}
			}
		}
	}
	return result
}

// fishCompleteLine formats a single FlagCompletion as a fish complete command.
func fishCompleteLine(f FlagCompletion, nodeList string) string {
	var parts []string
	parts = append(parts, "complete -c qcal")

	if f.Short != "" {
		parts = append(parts, fmt.Sprintf("-s %s", f.Short))
	}
	if f.Long != "" {
		parts = append(parts, fmt.Sprintf("-l %s", f.Long))
	}

	parts = append(parts, fmt.Sprintf("-d '%s'", f.Help))

	if f.IsFile {
		parts = append(parts, "-rF")
	} else if f.IsNode {
		parts = append(parts, fmt.Sprintf("-xa '%s'", nodeList))
	} else if len(f.Values) > 0 {
		parts = append(parts, fmt.Sprintf("-xa '%s'", strings.Join(f.Values, " ")))
	} else if f.ValueName != "" {
		// Takes a value but no suggestions (e.g., --qubits)
		parts = append(parts, "-x")
	}

	return strings.Join(parts, " ")
}

// generatePowerShellCompletion generates a PowerShell completion script.
func generatePowerShellCompletion(out io.Writer, nodes []string) error {
	// Build $options entries from registry
	var optionEntries []string
	for _, f := range flagRegistry {
		if f.Short != "" {
			optionEntries = append(optionEntries, fmt.Sprintf(
				"        @{Name = '-%s'; Description = '%s' }", f.Short, f.Help))
		}
		if f.Long != "" {
			optionEntries = append(optionEntries, fmt.Sprintf(
				"        @{Name = '--%s'; Description = '%s' }", f.Long, f.Help))
		}
	}

	// Build context-aware switch entries.
	// Only the node flag and non-grouped flags with static values get
	// context-aware completion; grouped flags are omitted.
	var switchEntries []string

	psSwitchEntry := func(f FlagCompletion) string {
		var quotedVals []string
		for _, v := range f.Values {
			quotedVals = append(quotedVals, fmt.Sprintf("'%s'", v))
		}
		return fmt.Sprintf(`        '--%s' {
            @(%s) | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
                [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
            }
            return
        }`, f.Long, strings.Join(quotedVals, ", "))
	}

	// Node flags first
	for _, f := range flagRegistry {
		if f.IsNode {
			switchEntries = append(switchEntries, fmt.Sprintf(`        '--%s' {
            $qcalNodes | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
                [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
            }
            return
        }`, f.Long))
		}
	}

	// Non-node value flags in reverse registry order (completion before timeout)
	var psValueFlags []FlagCompletion
	for _, f := range flagRegistry {
		if !f.IsNode && !f.IsFile && f.BashGroup == "" && len(f.Values) > 0 {
			psValueFlags = append(psValueFlags, f)
		}
	}
	for i := len(psValueFlags) - 1; i >= 0; i-- {
		switchEntries = append(switchEntries, psSwitchEntry(psValueFlags[i]))
	}

	// Format node list for PowerShell
	psNodeList := ""
	for i, node := range nodes {
		if i > 0 {
			psNodeList += ", "
		}
		psNodeList += fmt.Sprintf("'%s'", node)
	}

	script := fmt.Sprintf(`# PowerShell completion script for qcal
# Add this to your $PROFILE

$qcalNodes = @(%s)

Register-ArgumentCompleter -CommandName 'qcal' -Native -ScriptBlock {
    param($wordToComplete, $commandAst, $cursorPosition)

    $options = @(
%s
    )

    $elements = $commandAst.CommandElements
    $lastElement = if ($elements.Count -gt 1) { $elements[-1].ToString() } else { '' }
    $prevElement = if ($elements.Count -gt 2) { $elements[-2].ToString() } else { '' }

    # Context-aware completions
    switch ($prevElement) {
%s
    }

    # Default: show options
    $options | Where-Object { $_.Name -like "$wordToComplete*" } | ForEach-Object {
        [System.Management.Automation.CompletionResult]::new($_.Name, $_.Name, 'ParameterName', $_.Description)
    }
}
`, psNodeList, strings.Join(optionEntries, "\n"), strings.Join(switchEntries, "\n"))

	_, err := fmt.Fprint(out, script)
	return err
}
