package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"custodian/pkg/domain"
)

func TestSortBySequence(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }
	resolved := func(code string, state State, created, reviewed int, seq int64) *ChangeRequest {
		return &ChangeRequest{
			Code:      code,
			CreatedAt: at(created),
			State:     state,
			Review:    &Review{Decision: state, ReviewedAt: at(reviewed), Sequence: seq},
		}
	}

	t.Run("approvals follow apply order over review time", func(t *testing.T) {
		creation := resolved("CR-00001", StateApproved, 0, 1, 1)
		late := resolved("CR-00002", StateApproved, 2, 4, 3)
		early := resolved("CR-00003", StateApproved, 3, 5, 2)
		reqs := []*ChangeRequest{late, early, creation}

		SortBySequence(reqs)

		assert.Equal(t, []*ChangeRequest{creation, early, late}, reqs)
	})

	t.Run("non-approved requests keep their time slots", func(t *testing.T) {
		creation := resolved("CR-00001", StateApproved, 0, 1, 1)
		rejected := resolved("CR-00002", StateRejected, 2, 3, 0)
		second := resolved("CR-00003", StateApproved, 2, 6, 3)
		first := resolved("CR-00004", StateApproved, 3, 7, 2)
		pending := &ChangeRequest{Code: "CR-00005", CreatedAt: at(5), State: StatePending}
		reqs := []*ChangeRequest{pending, first, second, rejected, creation}

		SortBySequence(reqs)

		assert.Equal(t, []*ChangeRequest{creation, rejected, pending, first, second}, reqs)
	})
}

func TestApplySequence(t *testing.T) {
	r := &ChangeRequest{State: StatePending}
	assert.Zero(t, r.ApplySequence())

	r.ApplyResolution(StateRejected, domain.PrincipalID{}, "no", time.Now())
	r.Review.Sequence = 9
	assert.Zero(t, r.ApplySequence())

	r.State = StateApproved
	assert.Equal(t, int64(9), r.ApplySequence())
}
