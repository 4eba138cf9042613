// Package tools – tracking.go implements the tracking domain tools:
// record_metric and record_habit (writes), get_history (read).
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

// Metric type -> (area, sub_area).
var metricAreaMap = map[string][2]string{
	"weight":   {"health", "physical"},
	"water":    {"health", "physical"},
	"sleep":    {"health", "physical"},
	"exercise": {"health", "physical"},
	"mood":     {"health", "mental"},
	"energy":   {"health", "mental"},
	"custom":   {"learning", "informal"},
}

// Metric type -> default unit.
var metricDefaultUnit = map[string]string{
	"weight":   "kg",
	"water":    "ml",
	"sleep":    "hours",
	"exercise": "min",
	"mood":     "score",
	"energy":   "score",
}

// Metric type -> (min, max) accepted value.
var metricValueRanges = map[string][2]float64{
	"weight":   {0.1, 500},
	"water":    {1, 10000},
	"sleep":    {0.1, 24},
	"exercise": {1, 1440},
	"mood":     {1, 10},
	"energy":   {1, 10},
}

var metricTypeLabels = map[string]string{
	"weight":   "peso",
	"water":    "água",
	"sleep":    "sono",
	"exercise": "exercício",
	"mood":     "humor",
	"energy":   "energia",
	"custom":   "métrica personalizada",
}

var metricUnitLabels = map[string]string{
	"kg":    "kg",
	"ml":    "ml",
	"hours": "horas",
	"min":   "minutos",
	"score": "pontos",
}

// ---------- record_metric ----------

// RecordMetricTool records one tracking metric entry.
type RecordMetricTool struct {
	tracking *store.TrackingStore
	logger   *slog.Logger
}

// NewRecordMetricTool creates the record_metric tool.
func NewRecordMetricTool(tracking *store.TrackingStore, logger *slog.Logger) *RecordMetricTool {
	return &RecordMetricTool{tracking: tracking, logger: logger.With("tool", "record_metric")}
}

func (t *RecordMetricTool) Name() string { return "record_metric" }

func (t *RecordMetricTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("record_metric",
		"Registra uma métrica de tracking do usuário (peso, água, sono, exercício, humor, energia).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"metric_type": map[string]any{
					"type":        "string",
					"description": "Tipo da métrica: weight, water, sleep, exercise, mood, energy ou custom",
				},
				"value": map[string]any{
					"type":        "number",
					"description": "Valor numérico da métrica",
				},
				"unit": map[string]any{
					"type":        "string",
					"description": "Unidade (kg, ml, hours, min, score). Auto-preenchido se omitido",
				},
				"date": map[string]any{
					"type":        "string",
					"description": "Data no formato YYYY-MM-DD. Usa hoje se omitido",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Observações opcionais sobre o registro",
				},
			},
			"required": []string{"metric_type", "value"},
		})
}

func (t *RecordMetricTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	metricType, _ := args["metric_type"].(string)
	value, ok := toFloat(args["value"])
	if !ok {
		return &agent.ToolOutcome{Success: false, Error: "valor ausente ou não numérico"}, nil
	}

	if _, valid := metricAreaMap[metricType]; !valid {
		return &agent.ToolOutcome{
			Success: false,
			Error:   fmt.Sprintf("Tipo inválido: %s. Use: energy, exercise, mood, sleep, water, weight ou custom", metricType),
		}, nil
	}

	if r, ok := metricValueRanges[metricType]; ok {
		if value < r[0] || value > r[1] {
			return &agent.ToolOutcome{
				Success: false,
				Error:   fmt.Sprintf("Valor fora do intervalo para %s: %g-%g", metricType, r[0], r[1]),
			}, nil
		}
	}

	unit, _ := args["unit"].(string)
	if unit == "" {
		unit = metricDefaultUnit[metricType]
	}

	date := resolveDate(args, session.Timezone)
	areas := metricAreaMap[metricType]
	notes, _ := args["notes"].(string)

	entry := &store.TrackingEntry{
		UserID:    session.UserID,
		Type:      metricType,
		Area:      areas[0],
		SubArea:   areas[1],
		Value:     value,
		Unit:      unit,
		EntryDate: date,
		Notes:     notes,
	}
	if err := t.tracking.Insert(ctx, entry); err != nil {
		return nil, err
	}

	t.logger.Info("metric recorded", "entry_id", entry.ID, "type", metricType, "value", value)

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("Registrado: %s = %s %s em %s",
			metricTypeLabels[metricType], formatNumber(value), unitLabel(unit), date),
		Data: map[string]any{"entryId": entry.ID},
	}, nil
}

// ConfirmationMessage builds the PT-BR confirmation question for this call.
func (t *RecordMetricTool) ConfirmationMessage(args map[string]any) string {
	metricType, _ := args["metric_type"].(string)
	value, _ := toFloat(args["value"])
	unit, _ := args["unit"].(string)
	if unit == "" {
		unit = metricDefaultUnit[metricType]
	}
	date, _ := args["date"].(string)
	if date == "" {
		date = "hoje"
	}

	label := metricTypeLabels[metricType]
	if label == "" {
		label = metricType
	}
	return fmt.Sprintf("Registrar %s: %s %s em %s?", label, formatNumber(value), unitLabel(unit), date)
}

// ---------- record_habit ----------

// RecordHabitTool marks a habit as completed for a date. Habit completions
// are tracking entries with type "habit" and value 1.
type RecordHabitTool struct {
	tracking *store.TrackingStore
	logger   *slog.Logger
}

// NewRecordHabitTool creates the record_habit tool.
func NewRecordHabitTool(tracking *store.TrackingStore, logger *slog.Logger) *RecordHabitTool {
	return &RecordHabitTool{tracking: tracking, logger: logger.With("tool", "record_habit")}
}

func (t *RecordHabitTool) Name() string { return "record_habit" }

func (t *RecordHabitTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("record_habit",
		"Marca um hábito do usuário como concluído em uma data.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Nome do hábito (ex: meditar, ler, correr)",
				},
				"date": map[string]any{
					"type":        "string",
					"description": "Data no formato YYYY-MM-DD. Usa hoje se omitido",
				},
			},
			"required": []string{"name"},
		})
}

func (t *RecordHabitTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	name, _ := args["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return &agent.ToolOutcome{Success: false, Error: "nome do hábito ausente"}, nil
	}

	date := resolveDate(args, session.Timezone)
	entry := &store.TrackingEntry{
		UserID:    session.UserID,
		Type:      "habit",
		Area:      "learning",
		SubArea:   "practice",
		Value:     1,
		EntryDate: date,
		Notes:     name,
	}
	if err := t.tracking.Insert(ctx, entry); err != nil {
		return nil, err
	}

	t.logger.Info("habit recorded", "entry_id", entry.ID, "habit", name, "date", date)

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("Hábito '%s' concluído em %s", name, date),
		Data:    map[string]any{"entryId": entry.ID},
	}, nil
}

// ConfirmationMessage builds the PT-BR confirmation question for this call.
func (t *RecordHabitTool) ConfirmationMessage(args map[string]any) string {
	name, _ := args["name"].(string)
	date, _ := args["date"].(string)
	if date == "" {
		date = "hoje"
	}
	return fmt.Sprintf("Marcar hábito '%s' como concluído em %s?", name, date)
}

// ---------- get_history ----------

// GetHistoryTool reads recent tracking entries.
type GetHistoryTool struct {
	tracking *store.TrackingStore
}

// NewGetHistoryTool creates the get_history tool.
func NewGetHistoryTool(tracking *store.TrackingStore) *GetHistoryTool {
	return &GetHistoryTool{tracking: tracking}
}

func (t *GetHistoryTool) Name() string { return "get_history" }

func (t *GetHistoryTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("get_history",
		"Consulta o histórico de métricas e hábitos do usuário.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"metric_type": map[string]any{
					"type":        "string",
					"description": "Tipo da métrica a consultar. Omita para todas",
				},
				"days": map[string]any{
					"type":        "integer",
					"description": "Janela em dias (padrão 7)",
				},
			},
		})
}

func (t *GetHistoryTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	metricType, _ := args["metric_type"].(string)
	days := 7
	if d, ok := toFloat(args["days"]); ok && d > 0 {
		days = int(d)
	}

	entries, err := t.tracking.ListRecent(ctx, session.UserID, metricType, days)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"type":  e.Type,
			"value": e.Value,
			"unit":  e.Unit,
			"date":  e.EntryDate,
			"notes": e.Notes,
		})
	}

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("%d registros nos últimos %d dias", len(items), days),
		Data:    map[string]any{"entries": items},
	}, nil
}

// ---------- shared helpers ----------

// resolveDate returns args["date"] when present, otherwise today in the
// session timezone (falling back to São Paulo).
func resolveDate(args map[string]any, timezone string) string {
	if date, _ := args["date"].(string); date != "" {
		if _, err := time.Parse("2006-01-02", date); err == nil {
			return date
		}
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc, _ = time.LoadLocation("America/Sao_Paulo")
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01-02")
}

// toFloat coerces JSON numbers (and numeric strings the model sometimes
// sends) to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// formatNumber renders a float without trailing zeros (2 not 2.000000).
func formatNumber(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}

func unitLabel(unit string) string {
	if label, ok := metricUnitLabels[unit]; ok {
		return label
	}
	return unit
}

// sortedMetricTypes is used in error messages and tests.
func sortedMetricTypes() []string {
	types := make([]string, 0, len(metricAreaMap))
	for t := range metricAreaMap {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
