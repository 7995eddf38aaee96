// Package perception turns a chat message into an intent plus inline
// entities. Classification is deterministic and runs before any generative
// step so command phrases can never be read as free-text payloads.
package perception

import (
	"regexp"
	"strconv"
	"strings"

	"tasknerd/internal/extract"
	"tasknerd/internal/logging"
	"tasknerd/internal/types"
)

// Confidence levels reported by the classifier.
const (
	ConfidenceCancel  = 0.95
	ConfidenceConfirm = 0.95
	ConfidenceCommand = 0.9
	ConfidenceInfo    = 0.85
	ConfidenceWeak    = 0.75
	ConfidenceUnknown = 0.3
)

// Classifier is a pure function of (message, state). It keeps no memory.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Classify maps one message to an IntentResult. Precedence:
//  1. cancellation phrases, in any state
//  2. yes/no while a workflow is open
//  3. explicit command phrases, in any state
//  4. PROVIDE_INFORMATION while a workflow is open
//  5. loose phrasings ("I need to ...") in NEUTRAL only
//  6. UNKNOWN
func (c *Classifier) Classify(message string, state types.ConversationState) types.IntentResult {
	text := strings.TrimSpace(message)
	lower := strings.ToLower(text)
	bare := strings.TrimSpace(strings.TrimRight(lower, ".!?"))
	if bare == "" {
		return types.IntentResult{Intent: types.IntentUnknown, Entities: types.Entities{Text: text}}
	}

	// Entity slices are cut from the original text at offsets found in the
	// lowercased copy; fall back to the copy when lowercasing changed widths.
	orig := text
	if len(lower) != len(text) {
		orig = lower
	}

	res := c.classify(orig, bare, state)
	res.Entities.Text = text
	logging.PerceptionDebug("classify %q in %s -> %s (%.2f, pattern=%v)",
		text, state.CurrentIntent, res.Intent, res.Confidence, res.PatternMatched)
	return res
}

func (c *Classifier) classify(text, bare string, state types.ConversationState) types.IntentResult {
	if cancelPhrase.MatchString(bare) {
		return matched(types.IntentCancel, ConfidenceCancel, types.Entities{})
	}

	open := !state.IsNeutral()
	if open {
		if yesPhrase.MatchString(bare) {
			return matched(types.IntentProvideInfo, ConfidenceConfirm, types.Entities{Confirmation: boolPtr(true)})
		}
		if noPhrase.MatchString(bare) {
			return matched(types.IntentProvideInfo, ConfidenceConfirm, types.Entities{Confirmation: boolPtr(false)})
		}
	}

	// Inside a workflow a bare verb phrase ("finish the report") is more
	// likely an answer than a new command, so only explicit ones switch.
	if res, explicit, ok := classifyCommand(text, bare); ok && (explicit || !open) {
		return res
	}

	if open {
		return matched(types.IntentProvideInfo, ConfidenceInfo, infoEntities(text, bare))
	}

	if res, ok := classifyLoose(text, bare); ok {
		return res
	}
	return types.IntentResult{Intent: types.IntentUnknown, Confidence: ConfidenceUnknown}
}

func matched(intent types.Intent, conf float64, e types.Entities) types.IntentResult {
	return types.IntentResult{Intent: intent, Confidence: conf, Entities: e, PatternMatched: true}
}

func boolPtr(b bool) *bool { return &b }

// =============================================================================
// PATTERNS
// =============================================================================

const polite = `^(?:(?:can|could|would|will)\s+you\s+(?:please\s+)?|please\s+|i\s+want\s+to\s+|i'?d\s+like\s+to\s+|let'?s\s+|go\s+ahead\s+and\s+)*`

var (
	cancelPhrase = regexp.MustCompile(`^(?:oh\s+|no\s+|please\s+|actually\s+|just\s+)*(?:cancel|stop|abort|quit|never\s*mind|nvm|forget\s+(?:about\s+)?it|don'?t\s+bother|i\s+changed\s+my\s+mind)(?:\s+(?:it|that|this|please|everything|the\s+whole\s+thing))*$`)
	yesPhrase    = regexp.MustCompile(`^(?:yes|yeah|yep|yup|y|sure|ok|okay|confirm|confirmed|correct|right|do\s+it|go\s+ahead|please\s+do|sounds\s+good|yes\s+please|that'?s\s+right|looks\s+good)$`)
	noPhrase     = regexp.MustCompile(`^(?:no|nope|nah|n|don'?t|do\s+not|no\s+thanks|no\s+thank\s+you|not\s+really)$`)

	listCommand  = regexp.MustCompile(polite + `(?:show|list|display|view|see|get|give)\s+(?:me\s+)?(?:all\s+)?(?:of\s+)?(?:my\s+|the\s+)?(?:all\s+)?(pending|completed|complete|finished|done|open|active|incomplete|remaining|outstanding)?\s*(?:tasks|task\s+list|todos|to-dos|items|list)\b`)
	listQuestion = regexp.MustCompile(`^what(?:'s|\s+is|\s+are)?\s+(?:on\s+)?(?:my\s+)?(pending|completed|open|remaining)?\s*(?:tasks|todos|to-dos|todo\s+list|to-do\s+list|list)\b`)
	listBare     = regexp.MustCompile(`^(?:my\s+)?(pending|completed|open)?\s*(?:tasks|todos)$`)

	addCommand = regexp.MustCompile(polite + `(?:add|create|new|make)\s+(?:a\s+|an\s+)?(?:new\s+)?(?:(?:high|medium|low|normal|urgent|important)\s+(?:priority\s+)?)?(?:task|todo|to-do|item|reminder)\b(?:\s*(?::|-)\s*|\s+(?:to|called|named|titled|for|that\s+says)\s+|\s+)?(.*)$`)
	addToList  = regexp.MustCompile(polite + `add\s+(.+?)\s+to\s+(?:my\s+)?(?:tasks|task\s+list|list|todo\s+list|to-do\s+list|todos)$`)

	deleteCommand = regexp.MustCompile(polite + `(?:delete|remove|erase|trash|drop|get\s+rid\s+of)\s+(.+)$`)
	cancelTaskID  = regexp.MustCompile(`^cancel\s+(?:the\s+|my\s+)?task\s*#?(\d+)$`)

	updateCommand = regexp.MustCompile(polite + `(update|modify|edit|rename|reschedule)\b\s*(.*)$`)
	updateTargets = regexp.MustCompile(polite + `(?:change|set|make|move)\s+(?:task\s*#?\d+|(?:the|my)\s+.+?\s+task\b)`)
	updateLoose   = regexp.MustCompile(`^(?:change|set|make|move)\s+(.+)$`)
	updateVerb    = regexp.MustCompile(polite + `(?:update|change|modify|edit|rename|reschedule|move|set|make|push)\s+`)

	completeAs     = regexp.MustCompile(polite + `(?:mark|set|flag)\s+(.+?)\s+as\s+(complete|completed|done|finished|incomplete|not\s+done|not\s+complete|pending|undone|open|uncompleted|unfinished)$`)
	completeVerb   = regexp.MustCompile(polite + `(?:complete|finish|check\s+off|tick\s+off|done\s+with)\s+(.+)$`)
	completePast   = regexp.MustCompile(`^(?:i\s+am\s+|i'?m\s+|i\s+)?(?:just\s+)?(?:finished|completed|did|done\s+with)\s+(.+)$`)
	completeStatus = regexp.MustCompile(`^(?:task\s*#?(\d+)|(?:the\s+)?(.+?)(?:\s+task)?)\s+is\s+(?:done|complete|completed|finished)$`)
	reopenVerb     = regexp.MustCompile(polite + `(?:reopen|uncomplete|unmark|undo)\s+(.+)$`)

	looseAdd = []*regexp.Regexp{
		regexp.MustCompile(`^(?:i\s+)?(?:need|have|want|got)\s+to\s+(.+)$`),
		regexp.MustCompile(`^(?:please\s+)?remind\s+me\s+to\s+(.+)$`),
		regexp.MustCompile(`^(?:remember|don'?t\s+forget)\s+to\s+(.+)$`),
		regexp.MustCompile(`^(?:please\s+)?add\s+(.+)$`),
		regexp.MustCompile(`^to-?do:?\s+(.+)$`),
	}

	taskIDRef     = regexp.MustCompile(`(?:\btask\s*#?|#|\bnumber\s+|\bid\s+)(\d+)\b`)
	bareNumber    = regexp.MustCompile(`^#?(\d+)$`)
	ordinalPhrase = regexp.MustCompile(`^(?:the\s+|option\s+|number\s+)?(first|second|third|fourth|fifth|1st|2nd|3rd|4th|5th|last)(?:\s+one)?$`)
	ofTheTask     = regexp.MustCompile(`\b(?:of|for|on)\s+(?:the|my)\s+(.+?)\s+task\b`)
	theTask       = regexp.MustCompile(`\b(?:the|my)\s+(.+?)\s+task\b`)
	pronounRef    = regexp.MustCompile(`^(?:it|that|this|that\s+one|this\s+one|them|one)$`)
	fieldWordRef  = regexp.MustCompile(`^(?:the\s+)?(?:priority|due\s+date|deadline|date|title|name|description|notes?|details)\b`)
	refTail       = regexp.MustCompile(`(?:'s)?\s+(?:to|priority|due|deadline|title|name|description|as|for|by)\b.*$`)

	titleChange = regexp.MustCompile(`(?i)\b(?:title|name)(?:\s+of\s+.+?)?\s*(?:to|as|=|:)\s+(.+)$`)
	renameTo    = regexp.MustCompile(`(?i)^rename\s+(?:.+?\s+)?to\s+(.+)$`)
	descChange  = regexp.MustCompile(`(?i)\b(?:description|notes?|details)(?:\s+of\s+.+?)?\s*(?:to|as|=|:|is)\s+(.+)$`)
	dueChange   = regexp.MustCompile(`(?i)\b(?:due\s+date|deadline|due)(?:\s+of\s+.+?)?\s*(?:to|as|=|:|is|on|by|for)\s+(.+)$`)
	prioChange  = regexp.MustCompile(`(?i)\bpriority\b.*?\bto\s+(high|medium|low)\b`)
	moveTo      = regexp.MustCompile(`(?i)^(?:reschedule|move|push)\s+.+?\s+(?:to|for|until)\s+(.+)$`)

	inlineDue  = regexp.MustCompile(`(?i)\s+(?:by|due|due\s+on|due\s+by|on|before|until)\s+(.+)$`)
	trailDue   = regexp.MustCompile(`(?i)\s+(today|tonight|tomorrow(?:\s+(?:morning|afternoon|evening|night))?|next\s+(?:week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday))$`)
	inlineDesc = regexp.MustCompile(`(?i)\s+(?:with\s+)?(?:description|notes?|details)\s*:?\s+(.+)$`)
	listSuffix = regexp.MustCompile(`(?i)\s+(?:to|on)\s+(?:my\s+)?(?:tasks|task\s+list|list|todo\s+list|to-do\s+list)$`)
	dateHint   = regexp.MustCompile(`(?i)\b(?:today|tonight|tomorrow|yesterday|next|this|in\s+\d+|in\s+(?:a|an|one|two|three)\b|monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|wed|thu|fri|sat|sun|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|\d{1,2}[/.-]\d{1,2}|\d{4}-\d{2}-\d{2}|\d{1,2}\s*(?:am|pm)|noon|midnight|end\s+of)`)
)

var ordinalWords = map[string]int{
	"first":  1,
	"1st":    1,
	"second": 2,
	"2nd":    2,
	"third":  3,
	"3rd":    3,
	"fourth": 4,
	"4th":    4,
	"fifth":  5,
	"5th":    5,
	"last":   -1,
}

// =============================================================================
// COMMANDS
// =============================================================================

// classifyCommand matches command phrases. Order matters: listing before
// completion ("show completed tasks"), numbered updates before adding
// ("make task 5 high priority"). explicit reports whether the phrase names a
// task outright rather than starting with a verb that could open a title.
func classifyCommand(text, bare string) (res types.IntentResult, explicit, ok bool) {
	for _, re := range []*regexp.Regexp{listCommand, listQuestion, listBare} {
		if m := re.FindStringSubmatch(bare); m != nil {
			return matched(types.IntentListTasks, ConfidenceCommand, types.Entities{Filter: listFilter(m[1])}), true, true
		}
	}

	if updateTargets.MatchString(bare) {
		return matched(types.IntentUpdateTask, ConfidenceCommand, updateEntities(text, bare)), true, true
	}

	if m := addToList.FindStringSubmatchIndex(bare); m != nil {
		return matched(types.IntentAddTask, ConfidenceCommand, addEntities(text, text[m[2]:m[3]])), true, true
	}
	if m := addCommand.FindStringSubmatchIndex(bare); m != nil {
		return matched(types.IntentAddTask, ConfidenceCommand, addEntities(text, text[m[2]:m[3]])), true, true
	}

	if m := cancelTaskID.FindStringSubmatch(bare); m != nil {
		if id := parseID(m[1]); id != nil {
			return matched(types.IntentDeleteTask, ConfidenceCommand, types.Entities{TaskID: id}), true, true
		}
	}
	if m := deleteCommand.FindStringSubmatchIndex(bare); m != nil {
		obj := bare[m[2]:m[3]]
		return matched(types.IntentDeleteTask, ConfidenceCommand, targetEntities(text[m[2]:m[3]])), namesTask(obj), true
	}

	if updateCommand.MatchString(bare) {
		return matched(types.IntentUpdateTask, ConfidenceCommand, updateEntities(text, bare)), true, true
	}

	if m := completeAs.FindStringSubmatchIndex(bare); m != nil {
		e := targetEntities(text[m[2]:m[3]])
		e.Completed = boolPtr(isDoneWord(bare[m[4]:m[5]]))
		return matched(types.IntentCompleteTask, ConfidenceCommand, e), true, true
	}
	if m := reopenVerb.FindStringSubmatchIndex(bare); m != nil {
		e := targetEntities(text[m[2]:m[3]])
		e.Completed = boolPtr(false)
		return matched(types.IntentCompleteTask, ConfidenceCommand, e), true, true
	}
	if m := completeStatus.FindStringSubmatchIndex(bare); m != nil {
		var e types.Entities
		if m[2] >= 0 {
			if e.TaskID = parseID(bare[m[2]:m[3]]); e.TaskID == nil {
				e.TaskRef = text[m[2]:m[3]]
			}
		} else {
			e = targetEntities(text[m[4]:m[5]])
		}
		e.Completed = boolPtr(true)
		return matched(types.IntentCompleteTask, ConfidenceCommand, e), true, true
	}
	for _, re := range []*regexp.Regexp{completeVerb, completePast} {
		if m := re.FindStringSubmatchIndex(bare); m != nil {
			e := targetEntities(text[m[2]:m[3]])
			e.Completed = boolPtr(true)
			return matched(types.IntentCompleteTask, ConfidenceCommand, e), namesTask(bare[m[2]:m[3]]), true
		}
	}
	return types.IntentResult{}, false, false
}

var taskMarker = regexp.MustCompile(`\btask\b|#\d+|^\d+$`)

func namesTask(obj string) bool { return taskMarker.MatchString(obj) }

// classifyLoose handles phrasings that only count as commands when no
// workflow is open.
func classifyLoose(text, bare string) (types.IntentResult, bool) {
	for _, re := range looseAdd {
		if m := re.FindStringSubmatchIndex(bare); m != nil {
			return matched(types.IntentAddTask, ConfidenceWeak, addEntities(text, text[m[2]:m[3]])), true
		}
	}
	if updateLoose.MatchString(bare) {
		return matched(types.IntentUpdateTask, ConfidenceWeak, updateEntities(text, bare)), true
	}
	return types.IntentResult{}, false
}

func listFilter(word string) types.ListFilter {
	switch word {
	case "pending", "open", "active", "incomplete", "remaining", "outstanding":
		return types.FilterPending
	case "completed", "complete", "finished", "done":
		return types.FilterCompleted
	}
	return types.FilterAll
}

func isDoneWord(w string) bool {
	switch w {
	case "complete", "completed", "done", "finished":
		return true
	}
	return false
}

// =============================================================================
// ENTITIES
// =============================================================================

// addEntities splits an add command's payload into title, due phrase,
// description and priority. The slices come from the original-case text so
// titles keep the user's capitalisation.
func addEntities(text, payload string) types.Entities {
	var e types.Entities

	if s := extract.SuggestPriority(text); s.Certain() {
		e.Priority = s.Priority
	} else if s.Negated {
		e.PriorityUncertain = true
	}

	title := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(payload), ".!?"))
	title = listSuffix.ReplaceAllString(title, "")

	if m := inlineDesc.FindStringSubmatchIndex(title); m != nil {
		e.Description = strings.TrimSpace(title[m[2]:m[3]])
		title = title[:m[0]]
	}
	if m := inlineDue.FindStringSubmatchIndex(title); m != nil && dateHint.MatchString(title[m[2]:m[3]]) {
		e.DueText = strings.TrimSpace(title[m[2]:m[3]])
		title = title[:m[0]]
	} else if m := trailDue.FindStringSubmatchIndex(title); m != nil {
		e.DueText = strings.TrimSpace(title[m[2]:m[3]])
		title = title[:m[0]]
	}

	title = extract.StripPriorityPhrases(title)
	title = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(title, "to "), "To "))
	e.Title = title
	return e
}

// targetEntities reads a task reference: an id ("task 5", "#5", "5") or a
// phrase ("the milk task"). Pronouns carry no reference.
func targetEntities(ref string) types.Entities {
	var e types.Entities
	r := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(ref), ".!?"))
	lower := strings.ToLower(r)

	if m := taskIDRef.FindStringSubmatch(lower); m != nil {
		if e.TaskID = parseID(m[1]); e.TaskID != nil {
			return e
		}
	}
	if m := bareNumber.FindStringSubmatch(lower); m != nil {
		if e.TaskID = parseID(m[1]); e.TaskID != nil {
			return e
		}
	}
	if m := ordinalPhrase.FindStringSubmatch(lower); m != nil {
		e.Ordinal = ordinalWords[m[1]]
		return e
	}
	e.TaskRef = cleanRef(r)
	return e
}

// parseID reads a task id. Digits that overflow an int64 name no task.
func parseID(digits string) *int64 {
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// cleanRef trims articles and "task" from a reference phrase.
func cleanRef(ref string) string {
	r := strings.TrimSpace(ref)
	lower := strings.ToLower(r)
	for _, p := range []string{"the ", "my ", "a ", "an "} {
		if strings.HasPrefix(lower, p) {
			r, lower = r[len(p):], lower[len(p):]
			break
		}
	}
	for _, s := range []string{" task", " item", " one", " please"} {
		if strings.HasSuffix(lower, s) {
			r, lower = r[:len(r)-len(s)], lower[:len(lower)-len(s)]
		}
	}
	r = strings.TrimSpace(r)
	if pronounRef.MatchString(strings.ToLower(r)) {
		return ""
	}
	return r
}

// updateEntities extracts the target and the requested changes.
func updateEntities(text, bare string) types.Entities {
	e := changeEntities(text)
	if m := taskIDRef.FindStringSubmatch(bare); m != nil {
		if e.TaskID = parseID(m[1]); e.TaskID != nil {
			return e
		}
	}

	// Reference phrases are cut from the original text to keep case.
	if m := ofTheTask.FindStringSubmatchIndex(bare); m != nil {
		e.TaskRef = cleanRef(text[m[2]:m[3]])
		return e
	}
	if m := theTask.FindStringSubmatchIndex(bare); m != nil && !fieldWordRef.MatchString(bare[m[2]:m[3]]) {
		e.TaskRef = cleanRef(text[m[2]:m[3]])
		return e
	}

	loc := updateVerb.FindStringIndex(bare)
	if loc == nil {
		return e
	}
	obj := text[loc[1]:]
	objLower := bare[loc[1]:]
	if fieldWordRef.MatchString(objLower) {
		return e
	}
	if t := refTail.FindStringIndex(objLower); t != nil {
		obj = obj[:t[0]]
	}
	e.TaskRef = cleanRef(obj)
	return e
}

// changeEntities pulls field changes out of free text: new title, new
// description, due phrase and priority.
func changeEntities(text string) types.Entities {
	var e types.Entities
	t := strings.TrimRight(strings.TrimSpace(text), ".!?")

	if m := renameTo.FindStringSubmatch(t); m != nil {
		e.Title = strings.TrimSpace(m[1])
	} else if m := titleChange.FindStringSubmatch(t); m != nil {
		e.Title = strings.TrimSpace(m[1])
	}
	if m := descChange.FindStringSubmatch(t); m != nil {
		e.Description = strings.TrimSpace(m[1])
	}
	if m := dueChange.FindStringSubmatch(t); m != nil && e.Title == "" {
		e.DueText = strings.TrimSpace(m[1])
	} else if m := moveTo.FindStringSubmatch(t); m != nil && dateHint.MatchString(m[1]) {
		e.DueText = strings.TrimSpace(m[1])
	}

	// Priority words inside a new title or description belong to that text.
	if e.Title == "" && e.Description == "" {
		if s := extract.SuggestPriority(t); s.Certain() {
			e.Priority = s.Priority
		} else if s.Negated {
			e.PriorityUncertain = true
		} else if m := prioChange.FindStringSubmatch(t); m != nil {
			e.Priority, _ = types.ParsePriority(m[1])
		}
	}
	return e
}

// infoEntities extracts everything a reply inside an open workflow might
// carry. The workflow decides which of them applies to the pending field.
func infoEntities(text, bare string) types.Entities {
	e := changeEntities(text)

	if m := taskIDRef.FindStringSubmatch(bare); m != nil {
		e.TaskID = parseID(m[1])
	} else if m := bareNumber.FindStringSubmatch(bare); m != nil {
		e.TaskID = parseID(m[1])
	} else if m := ordinalPhrase.FindStringSubmatch(bare); m != nil {
		e.Ordinal = ordinalWords[m[1]]
	}
	return e
}
