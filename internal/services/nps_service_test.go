package services

import (
	"context"
	"testing"

	"github.com/paulexconde/signalq/internal/models"
	"github.com/paulexconde/signalq/pkg/fault"
)

func TestCalculateNPS(t *testing.T) {
	tests := []struct {
		name        string
		nps         NPS
		expected    int
		expectError bool
	}{
		{
			name: "Basic Case",
			nps: NPS{
				TotalSurvey: 10,
				Promoters:   6,
				Passives:    2,
				Detractors:  2,
			},
			expected:    40,
			expectError: false,
		},
		{
			name: "Zero survey",
			nps: NPS{
				TotalSurvey: 0,
				Promoters:   0,
				Passives:    0,
				Detractors:  0,
			},
			expected:    0,
			expectError: false,
		},
		{
			name: "All Detractors",
			nps: NPS{
				TotalSurvey: 5,
				Promoters:   0,
				Passives:    0,
				Detractors:  5,
			},
			expected:    -100,
			expectError: false,
		},
		{
			name: "All Promoters",
			nps: NPS{
				TotalSurvey: 4,
				Promoters:   4,
				Passives:    0,
				Detractors:  0,
			},
			expected:    100,
			expectError: false,
		},
		{
			name: "Invalid Total Survey",
			nps: NPS{
				TotalSurvey: 10,
				Promoters:   6,
				Passives:    3,
				Detractors:  3,
			},
			expected:    0,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.nps.CalculateNPS()

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but go nil")
				}
			}

			if got != tt.expected {
				if err != nil {
					t.Errorf("Did not expect error, but got %v", err)
				}

				t.Errorf("CalculateNPS() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestScoreForQuestion(t *testing.T) {
	store := newMemStore()
	rating := store.addQuestion("rating", "integer", models.Payload{
		Label:      "How likely are you to recommend us?",
		ShortLabel: "recommend",
	})
	svc := NewNPSService(store)

	// One rating per session; the second session re-rates and only its most
	// recent value counts.
	ratings := []struct {
		sessionID int
		value     float64
	}{
		{1, 10}, // promoter
		{2, 2},
		{2, 9}, // promoter after re-rating
		{3, 7}, // passive
		{4, 3}, // detractor
	}
	ctx := context.Background()
	for _, r := range ratings {
		err := store.CreateAnswer(ctx, &models.Answer{
			SessionID:  r.sessionID,
			QuestionID: rating.ID,
			Value:      models.NewJSONValue(r.value),
			Label:      "recommend",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	score, err := svc.ScoreForQuestion(ctx, "rating")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if score.TotalSurvey != 4 {
		t.Errorf("TotalSurvey = %d, want 4", score.TotalSurvey)
	}
	if score.Promoters != 2 || score.Passives != 1 || score.Detractors != 1 {
		t.Errorf("breakdown = %d/%d/%d, want 2/1/1", score.Promoters, score.Passives, score.Detractors)
	}
	// 50% promoters minus 25% detractors.
	if score.Score != 25 {
		t.Errorf("Score = %d, want 25", score.Score)
	}
}

func TestScoreForQuestion_UnknownQuestion(t *testing.T) {
	svc := NewNPSService(newMemStore())

	_, err := svc.ScoreForQuestion(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error, got none")
	}
	if !fault.IsClientError(err) {
		t.Errorf("expected a client error, got %v", err)
	}
}
