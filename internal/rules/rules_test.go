package rules

import (
	"math"
	"strings"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestDefinition_Build(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		want    Rule
		wantErr bool
		errMsg  string
	}{
		{
			name: "official rule with explicit fields",
			def: Definition{
				ID:             "a1",
				Name:           "Incremento súbito oficial",
				Series:         SeriesOfficial,
				WindowDays:     intPtr(7),
				DeltaThreshold: floatPtr(0.5),
				MinCases:       floatPtr(10),
			},
			want: IncrementRule{
				ID:             "a1",
				Name:           "Incremento súbito oficial",
				WindowDays:     7,
				DeltaThreshold: 0.5,
				MinCases:       10,
			},
		},
		{
			name: "official rule with defaults",
			def:  Definition{ID: "a1", Series: SeriesOfficial},
			want: IncrementRule{
				ID:             "a1",
				WindowDays:     DefaultWindowDays,
				DeltaThreshold: DefaultDeltaThreshold,
				MinCases:       DefaultMinCases,
			},
		},
		{
			name: "social rule with defaults",
			def:  Definition{ID: "a2", Series: SeriesSocial},
			want: SocialSignalRule{
				ID:                  "a2",
				WindowDays:          DefaultWindowDays,
				ZScoreThreshold:     DefaultZScoreThreshold,
				SentimentMax:        DefaultSentimentMax,
				SentimentWindowDays: DefaultWindowDays,
			},
		},
		{
			name: "social rule with shorter sentiment window",
			def: Definition{
				ID:                  "a2",
				Series:              SeriesSocial,
				WindowDays:          intPtr(10),
				SentimentWindowDays: intPtr(3),
			},
			want: SocialSignalRule{
				ID:                  "a2",
				WindowDays:          10,
				ZScoreThreshold:     DefaultZScoreThreshold,
				SentimentMax:        DefaultSentimentMax,
				SentimentWindowDays: 3,
			},
		},
		{
			name: "explicit zero delta threshold is kept",
			def: Definition{
				ID:             "a1",
				Series:         SeriesOfficial,
				DeltaThreshold: floatPtr(0),
			},
			want: IncrementRule{
				ID:             "a1",
				WindowDays:     DefaultWindowDays,
				DeltaThreshold: 0,
				MinCases:       DefaultMinCases,
			},
		},
		{
			name:    "missing id",
			def:     Definition{Series: SeriesOfficial},
			wantErr: true,
			errMsg:  "rule id is required",
		},
		{
			name:    "missing series",
			def:     Definition{ID: "a1"},
			wantErr: true,
			errMsg:  "series is required",
		},
		{
			name:    "unknown series",
			def:     Definition{ID: "a1", Series: "weather"},
			wantErr: true,
			errMsg:  "unknown series",
		},
		{
			name:    "window too small",
			def:     Definition{ID: "a1", Series: SeriesOfficial, WindowDays: intPtr(1)},
			wantErr: true,
			errMsg:  "window_days must be >= 2",
		},
		{
			name:    "non-finite threshold",
			def:     Definition{ID: "a1", Series: SeriesOfficial, DeltaThreshold: floatPtr(math.NaN())},
			wantErr: true,
			errMsg:  "thresholds must be finite",
		},
		{
			name:    "non-finite sentiment max",
			def:     Definition{ID: "a2", Series: SeriesSocial, SentimentMax: floatPtr(math.Inf(-1))},
			wantErr: true,
			errMsg:  "thresholds must be finite",
		},
		{
			name:    "sentiment window larger than baseline window",
			def:     Definition{ID: "a2", Series: SeriesSocial, WindowDays: intPtr(5), SentimentWindowDays: intPtr(6)},
			wantErr: true,
			errMsg:  "sentiment_window_days",
		},
		{
			name:    "sentiment window below one",
			def:     Definition{ID: "a2", Series: SeriesSocial, SentimentWindowDays: intPtr(0)},
			wantErr: true,
			errMsg:  "sentiment_window_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.Build()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Build() error = %q, want containing %q", err.Error(), tt.errMsg)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Build() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRule_DerivedFields(t *testing.T) {
	inc := IncrementRule{ID: "a1", Name: "inc"}
	if inc.SeriesType() != SeriesOfficial {
		t.Errorf("IncrementRule.SeriesType() = %q, want %q", inc.SeriesType(), SeriesOfficial)
	}
	if inc.AlertType() != AlertTypeIncrement {
		t.Errorf("IncrementRule.AlertType() = %q, want %q", inc.AlertType(), AlertTypeIncrement)
	}

	soc := SocialSignalRule{ID: "a2", Name: "soc", WindowDays: 9}
	if soc.SeriesType() != SeriesSocial {
		t.Errorf("SocialSignalRule.SeriesType() = %q, want %q", soc.SeriesType(), SeriesSocial)
	}
	if soc.AlertType() != AlertTypeSocial {
		t.Errorf("SocialSignalRule.AlertType() = %q, want %q", soc.AlertType(), AlertTypeSocial)
	}
	if soc.Window() != 9 {
		t.Errorf("SocialSignalRule.Window() = %d, want 9", soc.Window())
	}
}
