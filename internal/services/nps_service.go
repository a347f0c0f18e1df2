package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulexconde/signalq/pkg/fault"
)

// NOTE: the formula for determining the NPS
// NPS = %Promoters − %Detractors
//
// Used for the feedback-request flow: sessions answer an integer rating
// question (0-10) and the score is aggregated per question.

type NPS struct {
	// The total of surveyed sessions
	TotalSurvey int
	// Ratings 9 or 10
	Promoters int
	// Ratings 7 or 8
	Passives int
	// 6 or lower
	Detractors int
}

func (n *NPS) CalculateNPS() (int, error) {
	if n.TotalSurvey == 0 {
		return 0, nil
	}

	totalEntities := (n.Promoters + n.Passives + n.Detractors)
	if n.TotalSurvey < totalEntities {
		return 0, fmt.Errorf("cannot compute nps with total survey is less than from the total of entities: %d total < total entities: %d", n.TotalSurvey, totalEntities)
	}

	promoterCalc := (float64(n.Promoters) / float64(n.TotalSurvey)) * 100
	detractorCalc := (float64(n.Detractors) / float64(n.TotalSurvey)) * 100

	return int(promoterCalc - detractorCalc), nil
}

// QuestionScore is the aggregated NPS breakdown for one rating question.
type QuestionScore struct {
	Key         string `json:"key"`
	TotalSurvey int    `json:"total_survey"`
	Promoters   int    `json:"promoters"`
	Passives    int    `json:"passives"`
	Detractors  int    `json:"detractors"`
	Score       int    `json:"score"`
}

// NPSService aggregates feedback ratings into a Net Promoter Score.
type NPSService interface {
	ScoreForQuestion(ctx context.Context, questionKey string) (*QuestionScore, error)
}

type npsServiceImpl struct {
	store Store
}

// NewNPSService instantiates the NPSService.
func NewNPSService(store Store) NPSService {
	return &npsServiceImpl{store: store}
}

func (s *npsServiceImpl) ScoreForQuestion(ctx context.Context, questionKey string) (*QuestionScore, error) {
	question, err := s.store.QuestionByKey(ctx, questionKey)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fault.NewClientError(fmt.Sprintf("no question with key=%s exists", questionKey), fault.ErrNotFound)
		}
		return nil, err
	}

	ratings, err := s.store.LatestRatingsForQuestion(ctx, question.ID)
	if err != nil {
		return nil, err
	}

	nps := NPS{TotalSurvey: len(ratings)}
	for _, rating := range ratings {
		switch {
		case rating >= 9:
			nps.Promoters++
		case rating >= 7:
			nps.Passives++
		default:
			nps.Detractors++
		}
	}

	score, err := nps.CalculateNPS()
	if err != nil {
		return nil, fault.NewInternalError("computing nps", err)
	}

	return &QuestionScore{
		Key:         question.Key,
		TotalSurvey: nps.TotalSurvey,
		Promoters:   nps.Promoters,
		Passives:    nps.Passives,
		Detractors:  nps.Detractors,
		Score:       score,
	}, nil
}
