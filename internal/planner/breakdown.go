package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/MurakamiHonami/streeeak/internal/model"
)

// Result sources.
const (
	SourceGemini   = "gemini"
	SourceFallback = "fallback"
)

const maxSubtasksPerDay = 5

// TextGenerator is the external text-generation collaborator. CompleteJSON
// returns the first JSON object extracted from the model's reply.
type TextGenerator interface {
	Enabled() bool
	CompleteJSON(ctx context.Context, prompt string) ([]byte, error)
}

// BreakdownTask is one generated draft task before persistence.
type BreakdownTask struct {
	Type       model.TaskType
	Title      string
	Month      *int
	WeekNumber *int
	Date       *time.Time
	Note       string
}

// BreakdownResult is the full generated task tree for one goal.
type BreakdownResult struct {
	Source  string
	Monthly []BreakdownTask
	Weekly  []BreakdownTask
	Daily   []BreakdownTask
}

// Engine turns goals into monthly/weekly/daily task drafts and drives the
// revision chat. A nil or disabled TextGenerator degrades every generation
// to the deterministic fallback path.
type Engine struct {
	gen TextGenerator
	now func() time.Time
}

// NewEngine builds an Engine around the given text generator. gen may be nil.
func NewEngine(gen TextGenerator) *Engine {
	return &Engine{gen: gen, now: time.Now}
}

func (e *Engine) enabled() bool {
	return e.gen != nil && e.gen.Enabled()
}

// Breakdown generates the task tree for goal within scope. Provider failures
// never surface: any transport, parse, or schema problem falls back to the
// deterministic breakdown with the cause logged.
func (e *Engine) Breakdown(ctx context.Context, goal *model.Goal, scope Scope, currentSituation string) BreakdownResult {
	if !e.enabled() {
		return e.fallbackBreakdown(goal, scope)
	}

	ai, err := e.requestBreakdown(ctx, goal, scope, currentSituation)
	if err != nil {
		log.Printf("[warn] gemini breakdown failed: %v", err)
		return e.fallbackBreakdown(goal, scope)
	}

	today := dateOnly(e.now())
	currentMonth := int(today.Month())
	currentWeek := isoWeek(today)

	monthlyTitles := parseTitles(ai.Monthly, "月間マイルストーン", scope.Months)
	for i, t := range monthlyTitles {
		monthlyTitles[i] = stripPeriodPrefix(t)
	}
	// The model sometimes skips the current month; back-fill one entry so the
	// first slot always represents "this month".
	if len(monthlyTitles) >= 1 && len(monthlyTitles) < scope.Months {
		first := strings.TrimSpace(goal.Title)
		if first == "" {
			first = "今月の目標"
		}
		monthlyTitles = append([]string{first}, monthlyTitles...)
	}
	if len(monthlyTitles) > scope.Months {
		monthlyTitles = monthlyTitles[:scope.Months]
	}

	weeklyTitles := parseTitles(ai.Weekly, "週次タスク", scope.WeeksPerMonth)
	for i, t := range weeklyTitles {
		weeklyTitles[i] = stripPeriodPrefix(t)
	}
	dailyTitles := parseTitles(ai.Daily, "デイリー行動", scope.DaysPerWeek)

	dailyDetails, err := e.requestDailyDetails(ctx, dailyTitles)
	if err != nil {
		log.Printf("[warn] gemini daily details failed: %v", err)
		dailyDetails = nil
	}

	result := BreakdownResult{Source: SourceGemini}
	result.Monthly = yearlyMilestones(goal, scope)

	for idx, title := range monthlyTitles {
		month := (currentMonth-1+idx)%12 + 1
		result.Monthly = append(result.Monthly, BreakdownTask{
			Type:  model.TaskMonthly,
			Title: title,
			Month: &month,
		})
	}

	for idx, title := range weeklyTitles {
		month := currentMonth
		week := currentWeek + idx
		result.Weekly = append(result.Weekly, BreakdownTask{
			Type:       model.TaskWeekly,
			Title:      title,
			Month:      &month,
			WeekNumber: &week,
		})
	}

	for idx, title := range dailyTitles {
		details := fallbackDailyDetails(title)
		if idx < len(dailyDetails) && len(dailyDetails[idx]) > 0 {
			details = dailyDetails[idx]
		}
		dayDate := today.AddDate(0, 0, idx)
		month := int(dayDate.Month())
		week := isoWeek(dayDate)
		result.Daily = append(result.Daily, BreakdownTask{
			Type:       model.TaskDaily,
			Title:      title,
			Month:      &month,
			WeekNumber: &week,
			Date:       &dayDate,
			Note:       ComposeSubtasks(details),
		})
	}

	return result
}

// fallbackBreakdown produces a deterministic tree when no provider is
// available: numbered tier-labelled titles anchored to today.
func (e *Engine) fallbackBreakdown(goal *model.Goal, scope Scope) BreakdownResult {
	today := dateOnly(e.now())
	currentMonth := int(today.Month())
	currentWeek := isoWeek(today)

	result := BreakdownResult{Source: SourceFallback}
	result.Monthly = yearlyMilestones(goal, scope)

	for m := 0; m < scope.Months; m++ {
		month := (currentMonth-1+m)%12 + 1
		result.Monthly = append(result.Monthly, BreakdownTask{
			Type:  model.TaskMonthly,
			Title: fmt.Sprintf("%s - 月間マイルストーン %d", goal.Title, m+1),
			Month: &month,
		})
	}

	for w := 0; w < scope.WeeksPerMonth; w++ {
		month := currentMonth
		week := currentWeek + w
		result.Weekly = append(result.Weekly, BreakdownTask{
			Type:       model.TaskWeekly,
			Title:      fmt.Sprintf("%s - 週次タスク %d", goal.Title, w+1),
			Month:      &month,
			WeekNumber: &week,
		})
	}

	for d := 0; d < scope.DaysPerWeek; d++ {
		title := fmt.Sprintf("%s - デイリー行動 %d", goal.Title, d+1)
		dayDate := today.AddDate(0, 0, d)
		month := int(dayDate.Month())
		week := isoWeek(dayDate)
		result.Daily = append(result.Daily, BreakdownTask{
			Type:       model.TaskDaily,
			Title:      title,
			Month:      &month,
			WeekNumber: &week,
			Date:       &dayDate,
			Note:       ComposeSubtasks(fallbackDailyDetails(title)),
		})
	}

	return result
}

// yearlyMilestones synthesizes one milestone task per year of a multi-year
// horizon. Milestones carry no month anchor; they summarize how many of the
// remaining months fall in that year.
func yearlyMilestones(goal *model.Goal, scope Scope) []BreakdownTask {
	var milestones []BreakdownTask
	for yearIdx := 0; yearIdx < scope.YearlyMilestones; yearIdx++ {
		monthsInYear := scope.Months - yearIdx*12
		if monthsInYear > 12 {
			monthsInYear = 12
		}
		if monthsInYear < 0 {
			monthsInYear = 0
		}
		milestones = append(milestones, BreakdownTask{
			Type:  model.TaskMonthly,
			Title: fmt.Sprintf("%d年目の目標: %s（%dヶ月計画）", yearIdx+1, goal.Title, monthsInYear),
		})
	}
	return milestones
}

type breakdownPayload struct {
	Monthly json.RawMessage `json:"monthly"`
	Weekly  json.RawMessage `json:"weekly"`
	Daily   json.RawMessage `json:"daily"`
}

func (e *Engine) requestBreakdown(ctx context.Context, goal *model.Goal, scope Scope, currentSituation string) (*breakdownPayload, error) {
	deadlineText := "未設定"
	if goal.Deadline != nil {
		deadlineText = goal.Deadline.Format("2006-01-02")
	}
	currentText := strings.TrimSpace(currentSituation)
	if currentText == "" {
		currentText = "未入力"
	}

	var b strings.Builder
	b.WriteString("あなたは目標分解のプロです。以下をJSONのみで返してください。\n")
	b.WriteString("ルール:\n")
	fmt.Fprintf(&b, "- monthly: 今月を1番目とした直近%dヶ月の目標配列（必ず%d件）。1件目=今月、2件目=来月、…、N件目=Nヶ月後\n", scope.Months, scope.Months)
	fmt.Fprintf(&b, "- weekly: 直近1ヶ月の週次目標配列（最大%d件、文字列）\n", scope.WeeksPerMonth)
	fmt.Fprintf(&b, "- daily: 開始日（今日）から%d日間の日次TODO配列（%d件、文字列）\n", scope.DaysPerWeek, scope.DaysPerWeek)
	b.WriteString("- ユーザーの現状・期限・目標文脈を必ず反映\n")
	b.WriteString("- monthlyの1件目は必ず「今月」の目標を含める。まずmonthlyを今月から順に作り、その直近1ヶ月を元にweekly、開始日から7日間を元にdailyを作成\n")
	b.WriteString("- 目標が数値化できる場合（点数、秒、回数、距離、体重、件数など）は、monthly/weeklyに中間数値目標を必ず入れる\n")
	b.WriteString("- 数値は現状から最終目標に向けて単調に進むようにする（増やす指標は増加、減らす指標は減少）\n")
	b.WriteString("- 中間値は現実的で達成可能な幅にする。最後のmonthly/weeklyは最終目標値に一致させる\n")
	b.WriteString("- 各タイトルは具体的に、可能なら数値・単位（点、秒、回、km、kg、問など）を含める\n")
	b.WriteString("- monthly/weeklyの各要素には「今から○ヶ月後:」「1週目:」などの接頭辞をつけず、目標内容のみを書く\n")
	b.WriteString("- JSON以外の文章は不要\n")
	b.WriteString(`形式: {"monthly":["..."],"weekly":["..."],"daily":["..."]}` + "\n")
	fmt.Fprintf(&b, "今は「%s」の状態で、期限「%s」までに、目標「%s」を達成したいです。", currentText, deadlineText, goal.Title)
	b.WriteString("そのためにこれからやるべき目標をmonthly単位で作成したのち、直近の1ヶ月のmonthly目標からその月のweekly分の目標を作成し、開始日（今日）からのdailyタスクとして作成してください。")

	raw, err := e.gen.CompleteJSON(ctx, b.String())
	if err != nil {
		return nil, err
	}
	var payload breakdownPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}
	return &payload, nil
}

// requestDailyDetails asks the provider for up to 5 short actionable
// sub-tasks per daily title. A per-day schema problem degrades just that day
// to the generic details.
func (e *Engine) requestDailyDetails(ctx context.Context, dailyTitles []string) ([][]string, error) {
	titlesJSON, err := json.Marshal(dailyTitles)
	if err != nil {
		return nil, err
	}
	prompt := "次の日次タスクごとに、実行可能な詳細TODOを3件ずつ作ってください。JSONのみ返答。形式は" +
		`{"details":[["todo1","todo2","todo3"], ...]}。` + "\n日次タスク: " + string(titlesJSON)

	raw, err := e.gen.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Details []json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode daily details: %w", err)
	}
	if payload.Details == nil {
		return nil, fmt.Errorf("daily details missing from response")
	}

	details := make([][]string, 0, len(payload.Details))
	for idx, item := range payload.Details {
		var todos []string
		if err := json.Unmarshal(item, &todos); err != nil {
			details = append(details, fallbackDailyDetails(titleAt(dailyTitles, idx)))
			continue
		}
		cleaned := make([]string, 0, len(todos))
		for _, todo := range todos {
			if t := strings.TrimSpace(todo); t != "" {
				cleaned = append(cleaned, t)
			}
		}
		if len(cleaned) == 0 {
			cleaned = fallbackDailyDetails(titleAt(dailyTitles, idx))
		} else if len(cleaned) > maxSubtasksPerDay {
			cleaned = cleaned[:maxSubtasksPerDay]
		}
		details = append(details, cleaned)
	}
	return details, nil
}

func titleAt(titles []string, idx int) string {
	if idx >= 0 && idx < len(titles) {
		return titles[idx]
	}
	return ""
}

func fallbackDailyDetails(title string) []string {
	return []string{
		title + " の準備を5分で行う",
		title + " を集中して実行する",
		title + " の結果を記録して振り返る",
	}
}

// parseTitles normalizes one tier array from the provider: non-array or
// empty input is replaced by numbered fallback titles, anything else is
// trimmed and truncated to max entries.
func parseTitles(raw json.RawMessage, fallbackPrefix string, max int) []string {
	var titles []string
	var items []any
	if raw != nil && json.Unmarshal(raw, &items) == nil {
		for _, item := range items {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				titles = append(titles, s)
			}
		}
	}
	if len(titles) == 0 {
		titles = make([]string, 0, max)
		for i := 0; i < max; i++ {
			titles = append(titles, fmt.Sprintf("%s %d", fallbackPrefix, i+1))
		}
		return titles
	}
	if len(titles) > max {
		titles = titles[:max]
	}
	return titles
}

var periodPrefixes = []*regexp.Regexp{
	// 今からNヶ月後: / 今からNか月後:
	regexp.MustCompile(`^今から\s*\d+\s*[ヶか]月後\s*[：:]\s*`),
	// N週目: / 第N週目:
	regexp.MustCompile(`^第?\s*\d+\s*週目\s*[：:]\s*`),
	// N年目・Mヶ月目:
	regexp.MustCompile(`^\d+年目\s*[・.]\s*\d+\s*[ヶか]月目\s*[：:]\s*`),
}

// stripPeriodPrefix removes period prefixes the model sometimes injects into
// monthly and weekly titles despite being told not to.
func stripPeriodPrefix(text string) string {
	s := strings.TrimSpace(text)
	for _, re := range periodPrefixes {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
