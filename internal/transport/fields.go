package transport

import (
	"fmt"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region decode

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func intField(in *structpb.Struct, key string) int {
	return int(in.GetFields()[key].GetNumberValue())
}

func subjectOf(in *structpb.Struct) subject.Key {
	return subject.Key{UserID: stringField(in, "user_id"), SessionID: stringField(in, "session_id")}
}

func scoresOf(in *structpb.Struct) map[string]int {
	sv := in.GetFields()["scores"].GetStructValue()
	if sv == nil {
		return nil
	}
	out := make(map[string]int, len(sv.GetFields()))
	for k, v := range sv.GetFields() {
		out[k] = int(v.GetNumberValue())
	}
	return out
}

func stringsOf(in *structpb.Struct, key string) []string {
	lv := in.GetFields()[key].GetListValue()
	if lv == nil {
		return nil
	}
	out := make([]string, 0, len(lv.GetValues()))
	for _, v := range lv.GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

func progressOf(in *structpb.Struct) flow.Progress {
	return flow.Progress{
		StepType:        flow.StepType(stringField(in, "step_type")),
		StepCode:        stringField(in, "step_id"),
		ProgressPercent: intField(in, "progress"),
		Error:           stringField(in, "error"),
	}
}

func resultOf(in *structpb.Struct) flow.Result {
	return flow.Result{
		StepType: flow.StepType(stringField(in, "next_step_type")),
		StepCode: stringField(in, "next_step_id"),
		RuleID:   stringField(in, "rule_id"),
		Scores:   scoresOf(in),
		Flags:    stringsOf(in, "flags"),
	}
}

func questionOf(in *structpb.Struct) catalog.Question {
	q := catalog.Question{
		Code:        stringField(in, "code"),
		Part:        intField(in, "part"),
		OrderingKey: intField(in, "order"),
		Required:    in.GetFields()["required"].GetBoolValue(),
		Text:        stringField(in, "text"),
		Type:        stringField(in, "type"),
	}
	for _, v := range in.GetFields()["options"].GetListValue().GetValues() {
		o := v.GetStructValue()
		q.Options = append(q.Options, catalog.Option{
			ID:    stringField(o, "id"),
			Text:  stringField(o, "text"),
			Value: stringField(o, "value"),
		})
	}
	return q
}

func contentOf(in *structpb.Struct) intervention.Content {
	c := intervention.Content{
		ID:              stringField(in, "id"),
		Title:           stringField(in, "lesson_title"),
		Goal:            stringField(in, "lesson_goal"),
		DurationMinutes: intField(in, "estimated_duration_minutes"),
	}
	for _, v := range in.GetFields()["content"].GetListValue().GetValues() {
		b := v.GetStructValue()
		block := catalog.ContentBlock{
			Order: intField(b, "order"),
			Type:  stringField(b, "type"),
		}
		if data := b.GetFields()["data"].GetStructValue(); data != nil {
			block.Data = data.AsMap()
		}
		c.Blocks = append(c.Blocks, block)
	}
	return c
}

func summaryOf(in *structpb.Struct) []flow.ScoreSummary {
	values := in.GetFields()["scores"].GetListValue().GetValues()
	out := make([]flow.ScoreSummary, 0, len(values))
	for _, v := range values {
		row := v.GetStructValue()
		out = append(out, flow.ScoreSummary{
			Code:           stringField(row, "score_code"),
			Name:           stringField(row, "score_name"),
			Value:          intField(row, "score_value"),
			Max:            intField(row, "max_value"),
			Band:           stringField(row, "band"),
			Interpretation: stringField(row, "interpretation"),
		})
	}
	return out
}

// #endregion decode

// #region encode

func subjectFields(s subject.Key) map[string]any {
	return map[string]any{"user_id": s.UserID, "session_id": s.SessionID}
}

func progressFields(p flow.Progress) map[string]any {
	out := map[string]any{
		"step_type": string(p.StepType),
		"step_id":   p.StepCode,
		"progress":  p.ProgressPercent,
	}
	if p.Error != "" {
		out["error"] = p.Error
	}
	return out
}

func resultFields(r flow.Result) map[string]any {
	scores := make(map[string]any, len(r.Scores))
	for k, v := range r.Scores {
		scores[k] = v
	}
	raised := make([]any, len(r.Flags))
	for i, f := range r.Flags {
		raised[i] = f
	}
	out := map[string]any{
		"next_step_type": string(r.StepType),
		"next_step_id":   r.StepCode,
		"scores":         scores,
		"flags":          raised,
	}
	if r.RuleID != "" {
		out["rule_id"] = r.RuleID
	}
	return out
}

func questionFields(q catalog.Question) map[string]any {
	opts := make([]any, len(q.Options))
	for i, o := range q.Options {
		opts[i] = map[string]any{"id": o.ID, "text": o.Text, "value": o.Value}
	}
	return map[string]any{
		"code":     q.Code,
		"part":     q.Part,
		"order":    q.OrderingKey,
		"required": q.Required,
		"text":     q.Text,
		"type":     q.Type,
		"options":  opts,
	}
}

func contentFields(c intervention.Content) map[string]any {
	blocks := make([]any, len(c.Blocks))
	for i, b := range c.Blocks {
		block := map[string]any{"order": b.Order, "type": b.Type}
		if len(b.Data) > 0 {
			block["data"] = plain(b.Data)
		}
		blocks[i] = block
	}
	return map[string]any{
		"id":                         c.ID,
		"lesson_title":               c.Title,
		"lesson_goal":                c.Goal,
		"estimated_duration_minutes": c.DurationMinutes,
		"content":                    blocks,
	}
}

func summaryFields(sums []flow.ScoreSummary) map[string]any {
	rows := make([]any, len(sums))
	for i, sum := range sums {
		row := map[string]any{
			"score_code":     sum.Code,
			"score_name":     sum.Name,
			"score_value":    sum.Value,
			"max_value":      sum.Max,
			"interpretation": sum.Interpretation,
		}
		if sum.Band != "" {
			row["band"] = sum.Band
		}
		rows[i] = row
	}
	return map[string]any{"scores": rows}
}

// plain rewrites YAML-decoded values into the shapes structpb.NewValue accepts.
func plain(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case nil, string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// #endregion encode
