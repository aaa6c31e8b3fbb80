package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MurakamiHonami/streeeak/internal/model"
)

// Revision target tiers. The first three match persisted task types; a
// subtask target edits one entry of a daily task's decoded sub-task list.
const (
	TargetMonthly = "monthly"
	TargetWeekly  = "weekly"
	TargetDaily   = "daily"
	TargetSubtask = "subtask"
)

const maxProposals = 40

// DraftTask is a caller-supplied snapshot of one task under revision. The
// set of drafts is the authoritative allow-list: proposals targeting any
// other task id are discarded.
type DraftTask struct {
	TaskID     int
	Type       model.TaskType
	Title      string
	Subtasks   []string
	Date       *time.Time
	Month      *int
	WeekNumber *int
}

// ChatMessage is one prior exchange in the revision conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// RevisionProposal is one validated edit suggestion. ProposalID is minted
// server-side; whatever id the provider returned is ignored.
type RevisionProposal struct {
	ProposalID   string
	TargetTaskID int
	TargetType   string
	SubtaskIndex *int
	Before       string
	After        string
	Reason       string
}

// RevisionResult is the outcome of one revision-chat exchange.
type RevisionResult struct {
	Source           string
	AssistantMessage string
	Proposals        []RevisionProposal
	NewGoalTitle     string
}

// ProposeRevisions asks the provider for a bounded set of edits matching the
// user's instruction, then validates every proposal against the draft set.
// With no drafts or no provider the result is an explanatory fallback with
// zero proposals; the provider is never called.
func (e *Engine) ProposeRevisions(ctx context.Context, goalTitle, message string, drafts []DraftTask, history []ChatMessage) RevisionResult {
	if len(drafts) == 0 {
		return RevisionResult{
			Source:           SourceFallback,
			AssistantMessage: "編集中のタスクが見つかりません。",
		}
	}
	if !e.enabled() {
		return RevisionResult{
			Source:           SourceFallback,
			AssistantMessage: "Geminiキー未設定のため提案を作成できません。",
		}
	}

	prompt, err := e.buildRevisionPrompt(goalTitle, message, drafts, history)
	if err != nil {
		log.Printf("[warn] build revision prompt: %v", err)
		return RevisionResult{
			Source:           SourceFallback,
			AssistantMessage: "Gemini提案の生成に失敗しました。再度試してください。",
		}
	}

	raw, err := e.gen.CompleteJSON(ctx, prompt)
	if err != nil {
		log.Printf("[warn] gemini revision failed: %v", err)
		return RevisionResult{
			Source:           SourceFallback,
			AssistantMessage: "Gemini提案の生成に失敗しました。再度試してください。",
		}
	}

	var payload struct {
		AssistantMessage string          `json:"assistant_message"`
		Proposals        json.RawMessage `json:"proposals"`
		NewGoalTitle     string          `json:"new_goal_title"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("[warn] decode revision response: %v", err)
		return RevisionResult{
			Source:           SourceFallback,
			AssistantMessage: "Gemini提案の生成に失敗しました。再度試してください。",
		}
	}

	assistantMessage := payload.AssistantMessage
	if assistantMessage == "" {
		assistantMessage = "提案を作成しました。"
	}
	newGoalTitle := strings.TrimSpace(payload.NewGoalTitle)

	var rawProposals []json.RawMessage
	if payload.Proposals == nil || json.Unmarshal(payload.Proposals, &rawProposals) != nil {
		return RevisionResult{
			Source:           SourceFallback,
			AssistantMessage: assistantMessage,
			NewGoalTitle:     newGoalTitle,
		}
	}

	proposals := validateProposals(rawProposals, drafts)
	if len(proposals) == 0 && len(rawProposals) > 0 {
		ids := make([]int, 0, len(drafts))
		for _, d := range drafts {
			ids = append(ids, d.TaskID)
		}
		log.Printf("[warn] revision: %d raw proposals all filtered out, valid task ids %v", len(rawProposals), ids)
	}

	return RevisionResult{
		Source:           SourceGemini,
		AssistantMessage: assistantMessage,
		Proposals:        proposals,
		NewGoalTitle:     newGoalTitle,
	}
}

// validateProposals keeps only proposals whose target id is in the draft
// set, whose tier is recognized, and whose subtask index (when the tier is
// subtask) is within bounds. Everything the provider sent is untrusted data.
func validateProposals(rawProposals []json.RawMessage, drafts []DraftTask) []RevisionProposal {
	draftByID := make(map[int]DraftTask, len(drafts))
	for _, d := range drafts {
		draftByID[d.TaskID] = d
	}

	var proposals []RevisionProposal
	for _, raw := range rawProposals {
		if len(proposals) >= maxProposals {
			break
		}
		var item struct {
			TargetTaskID json.RawMessage `json:"target_task_id"`
			TargetType   string          `json:"target_type"`
			SubtaskIndex *int            `json:"subtask_index"`
			Before       string          `json:"before"`
			After        string          `json:"after"`
			Reason       string          `json:"reason"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		taskID, ok := normalizeTaskID(item.TargetTaskID)
		if !ok {
			continue
		}
		draft, ok := draftByID[taskID]
		if !ok {
			continue
		}
		targetType := strings.ToLower(strings.TrimSpace(item.TargetType))
		switch targetType {
		case TargetMonthly, TargetWeekly, TargetDaily, TargetSubtask:
		default:
			continue
		}

		var subtaskIndex *int
		if targetType == TargetSubtask {
			if item.SubtaskIndex == nil {
				continue
			}
			idx := *item.SubtaskIndex
			if idx < 0 || idx >= len(draft.Subtasks) {
				continue
			}
			subtaskIndex = &idx
		}

		reason := strings.TrimSpace(item.Reason)
		if reason == "" {
			reason = "改善提案"
		}

		proposals = append(proposals, RevisionProposal{
			ProposalID:   uuid.NewString(),
			TargetTaskID: taskID,
			TargetType:   targetType,
			SubtaskIndex: subtaskIndex,
			Before:       strings.TrimSpace(item.Before),
			After:        strings.TrimSpace(item.After),
			Reason:       reason,
		})
	}
	return proposals
}

// normalizeTaskID accepts an integer, a numeric string, or a whole-valued
// float and maps them to the same id.
func normalizeTaskID(raw json.RawMessage) (int, bool) {
	if raw == nil {
		return 0, false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

func (e *Engine) buildRevisionPrompt(goalTitle, message string, drafts []DraftTask, history []ChatMessage) (string, error) {
	type draftPayload struct {
		TaskID     int      `json:"task_id"`
		TaskType   string   `json:"task_type"`
		Title      string   `json:"title"`
		Subtasks   []string `json:"subtasks"`
		Date       string   `json:"date,omitempty"`
		Month      *int     `json:"month,omitempty"`
		WeekNumber *int     `json:"week_number,omitempty"`
	}
	draftItems := make([]draftPayload, 0, len(drafts))
	for _, d := range drafts {
		item := draftPayload{
			TaskID:     d.TaskID,
			TaskType:   string(d.Type),
			Title:      d.Title,
			Subtasks:   d.Subtasks,
			Month:      d.Month,
			WeekNumber: d.WeekNumber,
		}
		if item.Subtasks == nil {
			item.Subtasks = []string{}
		}
		if d.Date != nil {
			item.Date = d.Date.Format("2006-01-02")
		}
		draftItems = append(draftItems, item)
	}
	draftJSON, err := json.Marshal(draftItems)
	if err != nil {
		return "", err
	}

	type historyPayload struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	historyItems := make([]historyPayload, 0, len(history))
	for _, m := range history {
		historyItems = append(historyItems, historyPayload{Role: m.Role, Content: m.Content})
	}
	historyJSON, err := json.Marshal(historyItems)
	if err != nil {
		return "", err
	}

	todayISO := dateOnly(e.now()).Format("2006-01-02")

	var b strings.Builder
	b.WriteString("あなたはタスク編集アシスタントです。ユーザーが入力したテキストに基づき、最終目標・月次(monthly)・週次(weekly)・日次(daily)タスクのうち、修正が必要なものを提案してください。JSONのみで返してください。\n\n")
	b.WriteString("【入力テキストの解釈】\n")
	b.WriteString("- ユーザーのメッセージは「何をどう直すか」の指示です。その指示に該当するタスクに対して、必ず修正提案を返すこと。\n")
	b.WriteString("- 例: 「週次タスクをもっと具体化して」→ 全ての weekly タスクを具体化した提案を返す。\n")
	b.WriteString("- 例: 「月次の目標を数値で」→ 全ての monthly タスクを数値目標にした提案を返す。\n")
	b.WriteString("- 提案は0件にしないこと。ユーザーが変更を求めている限り、該当するタスクに対して少なくとも1件以上提案すること。\n\n")
	b.WriteString("【修正対象の範囲】\n")
	b.WriteString("- 「今日のタスク」「今日だけ」など今日に言及した場合: date が今日の日付と一致する daily タスクのみ対象。\n")
	b.WriteString("- 「週次だけ」と言った場合: task_type が weekly のタスクのみ対象。「月次だけ」なら monthly のみ対象。\n")
	b.WriteString("- 範囲が指定されていない場合: メッセージの意図に沿い、必要なレベルすべてに提案する。\n\n")
	b.WriteString("【階層の一貫性（カスケード）】上位を修正したら下位も整合させる:\n")
	b.WriteString("- 年次・長期目標の変更時: 月次タスクを全て長期目標に合わせて修正し、修正した各月に属する週次タスク（同じ month のタスク）、さらにその週に属する日次タスク（同じ week_number のタスク）も整合させる。\n")
	b.WriteString("- 月次の目標が修正された場合: その月に属する週次タスクを修正後の月次目標に合わせて提案し、該当する日次タスクも週の目標に合わせる。\n")
	b.WriteString("- 週次の目標が修正された場合: その週に属する日次タスク（week_number が一致するタスク）を合わせて提案する。\n")
	b.WriteString("- ドラフトタスクの month / week_number / date を見て、どのタスクがどの月・週に属するか判断すること。\n\n")
	b.WriteString("ルール:\n")
	fmt.Fprintf(&b, "- proposalsは最大%d件まで\n", maxProposals)
	b.WriteString("- target_type は monthly/weekly/daily/subtask のいずれか\n")
	b.WriteString("- subtask提案時は subtask_index を必ず指定し、before/after はサブタスク文言\n")
	b.WriteString("- task提案時は before/after はタイトル文言\n")
	b.WriteString("- 優先順位: 月次 > 週次 > 日次\n")
	b.WriteString("- ユーザーが最終目標の文言そのものを変更したい場合は new_goal_title を1つ含める。変更不要の場合は省略。\n")
	b.WriteString("- 各提案の target_task_id は、必ず下記ドラフトタスクの task_id のいずれかと完全に一致させること。存在しないIDを指定すると提案は無効になる。\n")
	b.WriteString(`形式: {"assistant_message":"...","proposals":[{"target_task_id":<数値>,"target_type":"monthly"|"weekly"|"daily"|"subtask","before":"現在の文言","after":"修正後の文言","reason":"理由"},...],"new_goal_title":"..." または省略}` + "\n\n")
	fmt.Fprintf(&b, "今日の日付（参照用）: %s\n", todayISO)
	fmt.Fprintf(&b, "長期目標（最終目標）: %s\n", goalTitle)
	fmt.Fprintf(&b, "会話履歴: %s\n", historyJSON)
	fmt.Fprintf(&b, "ユーザーメッセージ: %s\n", message)
	fmt.Fprintf(&b, "ドラフトタスク（各タスクに date/month/week_number が含まれる場合、そのタスクの期間を示す）: %s", draftJSON)
	return b.String(), nil
}
