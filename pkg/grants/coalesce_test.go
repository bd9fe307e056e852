package grants_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/fundingscape/pkg/grants"
)

func TestCoalesce(t *testing.T) {
	cordis := grants.GrantAward{
		SourceIdentity: grants.SourceIdentity{Source: "cordis_bulk", LocalID: "horizon_101080142"},
		ProjectID:      "101080142",
		Title:          "Quantum Sensing with NV Centres in Diamond",
		PI:             grants.Investigator{Institution: "UNIVERSITAET STUTTGART"},
		StartDate:      grants.NewDate(2023, 1, 1),
		Status:         grants.GrantActive,
	}
	openaire := grants.GrantAward{
		SourceIdentity: grants.SourceIdentity{Source: "openaire_bulk", LocalID: "oaire_EC_101080142"},
		Title:          "Quantum sensing with NV-centres in diamond",
		PI:             grants.Investigator{Institution: "Stuttgart University", Country: "DE"},
		Amount:         grants.NewMoney(2000000, "EUR"),
		Keywords:       []string{"quantum sensing"},
		Status:         grants.GrantCompleted,
	}
	gepris := grants.GrantAward{
		SourceIdentity: grants.SourceIdentity{Source: "gepris", LocalID: "gepris_1"},
		Amount:         grants.NewMoney(1, "EUR"),
		EndDate:        grants.NewDate(2026, 12, 31),
	}

	got := grants.Coalesce(cordis, openaire, gepris)

	assert.Equal(t, cordis.SourceIdentity, got.SourceIdentity)
	assert.Equal(t, cordis.Title, got.Title)
	assert.Equal(t, "UNIVERSITAET STUTTGART", got.PI.Institution, "primary values win")
	assert.Equal(t, grants.GrantActive, got.Status)
	assert.Equal(t, "DE", got.PI.Country, "gaps filled from the first alias")
	assert.True(t, grants.NewMoney(2000000, "EUR").Equal(got.Amount))
	assert.Equal(t, []string{"quantum sensing"}, got.Keywords)
	assert.Equal(t, grants.NewDate(2026, 12, 31), got.EndDate, "later aliases fill what is still empty")

	got.Amount.Minor = 0
	got.Keywords[0] = "changed"
	assert.True(t, grants.NewMoney(2000000, "EUR").Equal(openaire.Amount), "inputs are not modified")
	assert.Equal(t, "quantum sensing", openaire.Keywords[0])
	assert.Nil(t, cordis.Amount)
}
