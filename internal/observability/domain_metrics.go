package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askbi_llm_calls_total",
			Help: "Total number of batched LLM generation statements by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	llmPromptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askbi_llm_prompts_total",
			Help: "Total number of prompts sent to the LLM bridge by kind.",
		},
		[]string{"kind"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askbi_llm_call_duration_seconds",
			Help:    "Latency of batched LLM generation statements.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)
	shardParseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askbi_shard_parse_failures_total",
			Help: "Total number of shard responses that could not be parsed into a query spec.",
		},
	)
	emptyExtractionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askbi_empty_extractions_total",
			Help: "Total number of translations where no shard produced a usable query spec.",
		},
	)
	mergeValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askbi_merge_validations_total",
			Help: "Total number of merge validation passes by outcome.",
		},
		[]string{"outcome"},
	)
	queryCreationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askbi_query_creations_total",
			Help: "Total number of BI query creations by outcome.",
		},
		[]string{"outcome"},
	)
	tilesSummarizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askbi_tiles_summarized_total",
			Help: "Total number of dashboard tiles summarized by outcome.",
		},
		[]string{"outcome"},
	)
	feedbackRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askbi_feedback_records_total",
			Help: "Total number of exploration feedback writes by stage (catalog, archive) and outcome.",
		},
		[]string{"stage", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		llmCallsTotal,
		llmPromptsTotal,
		llmCallDurationSeconds,
		shardParseFailuresTotal,
		emptyExtractionsTotal,
		mergeValidationsTotal,
		queryCreationsTotal,
		tilesSummarizedTotal,
		feedbackRecordsTotal,
	)
}

func ObserveLLMCall(kind string, prompts int, outcome string, elapsed time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	llmCallsTotal.WithLabelValues(kind, outcome).Inc()
	if prompts > 0 {
		llmPromptsTotal.WithLabelValues(kind).Add(float64(prompts))
	}
	llmCallDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func IncrementShardParseFailures(n int) {
	if n > 0 {
		shardParseFailuresTotal.Add(float64(n))
	}
}

func IncrementEmptyExtraction() {
	emptyExtractionsTotal.Inc()
}

func ObserveMergeValidation(outcome string) {
	mergeValidationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveQueryCreation(outcome string) {
	queryCreationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveTileSummaries(ok, failed int) {
	if ok > 0 {
		tilesSummarizedTotal.WithLabelValues(OutcomeOK).Add(float64(ok))
	}
	if failed > 0 {
		tilesSummarizedTotal.WithLabelValues(OutcomeError).Add(float64(failed))
	}
}

func ObserveFeedbackRecord(stage, outcome string) {
	feedbackRecordsTotal.WithLabelValues(stage, outcome).Inc()
}

func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
