package changerequest

import (
	"slices"
	"strings"

	"custodian/internal/ledger/models"
)

func sortBySubmission(reqs []*models.ChangeRequest) {
	slices.SortFunc(reqs, func(a, b *models.ChangeRequest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
}
