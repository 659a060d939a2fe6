package scoring

import (
	"sort"

	"github.com/mmeshcher/agrotender/internal/model"
)

// Rank упорядочивает предложения одного тендера по убыванию итоговой оценки.
// При равной оценке выше стоит предложение, поданное раньше; при равном времени подачи — с меньшим ID.
// Предложения без оценки считаются имеющими оценку 0. Входной срез не изменяется.
func Rank(bids []model.Bid) []model.RankedBid {
	if len(bids) == 0 {
		return []model.RankedBid{}
	}

	sorted := make([]model.Bid, len(bids))
	copy(sorted, bids)

	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := totalScore(sorted[i]), totalScore(sorted[j])
		if si != sj {
			return si > sj
		}
		if !sorted[i].SubmittedAt.Equal(sorted[j].SubmittedAt) {
			return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	result := make([]model.RankedBid, len(sorted))
	for i, b := range sorted {
		result[i] = model.RankedBid{Rank: i + 1, Bid: b}
	}
	return result
}

func totalScore(b model.Bid) float64 {
	if b.Score == nil {
		return 0
	}
	return b.Score.Total
}
