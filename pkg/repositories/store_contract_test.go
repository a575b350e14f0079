package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testProject(name string, offset time.Duration) *models.Project {
	return &models.Project{
		ID:        uuid.New(),
		Name:      name,
		Context:   "retail analytics",
		CreatedAt: testEpoch.Add(offset),
		UpdatedAt: testEpoch.Add(offset),
	}
}

func testDataset(projectID uuid.UUID, id string, offset time.Duration) *models.Dataset {
	return &models.Dataset{
		ID:          id,
		ProjectID:   projectID,
		DisplayName: id + ".csv",
		RowCount:    3,
		CreatedAt:   testEpoch.Add(offset),
		Columns: []models.Column{
			{Name: "id", Role: models.RoleIdentifier, Values: []models.Value{
				models.NumberValue(1), models.NumberValue(2), models.NumberValue(3),
			}},
			{Name: "label", Role: models.RoleCategorical, Values: []models.Value{
				models.StringValue("a"), models.Null, models.StringValue("001"),
			}},
			{Name: "active", Role: models.RoleCategorical, Values: []models.Value{
				models.BoolValue(true), models.BoolValue(false), models.Null,
			}},
			{Name: "seen", Role: models.RoleDatetime, Values: []models.Value{
				models.TimeValue(testEpoch), models.TimeValue(testEpoch.Add(36 * time.Hour)), models.Null,
			}},
			{Name: "ratio", Role: models.RoleNumeric, Values: []models.Value{
				models.NumberValue(0.1), models.NumberValue(-2.5e-7), models.NumberValue(1e21),
			}},
		},
	}
}

func testCandidate(source, target string, provenance models.Provenance, confidence float64) models.RelationshipCandidate {
	return models.RelationshipCandidate{
		ID:              string(provenance) + ":" + source + ":" + target,
		SourceDatasetID: source,
		SourceColumn:    "id",
		TargetDatasetID: target,
		TargetColumn:    "id",
		Confidence:      confidence,
		MatchingCount:   2,
		SourceUnmatched: 1,
		TargetUnmatched: 0,
		Provenance:      provenance,
		CreatedAt:       testEpoch,
	}
}

// runStoreContract exercises the behavior every Store backend must share.
func runStoreContract(t *testing.T, store *Store) {
	ctx := context.Background()

	t.Run("projects", func(t *testing.T) {
		p1 := testProject("first", 0)
		p2 := testProject("second", time.Minute)
		require.NoError(t, store.Projects.Create(ctx, p1))
		require.NoError(t, store.Projects.Create(ctx, p2))

		got, err := store.Projects.Get(ctx, p1.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Name)
		assert.Equal(t, "retail analytics", got.Context)
		assert.True(t, got.CreatedAt.Equal(p1.CreatedAt))

		list, err := store.Projects.List(ctx)
		require.NoError(t, err)
		var ids []uuid.UUID
		for _, p := range list {
			ids = append(ids, p.ID)
		}
		assert.Contains(t, ids, p1.ID)
		assert.Contains(t, ids, p2.ID)

		got.Context = "subscription churn"
		got.UpdatedAt = testEpoch.Add(time.Hour)
		require.NoError(t, store.Projects.Update(ctx, got))
		updated, err := store.Projects.Get(ctx, p1.ID)
		require.NoError(t, err)
		assert.Equal(t, "subscription churn", updated.Context)

		require.NoError(t, store.Projects.Delete(ctx, p2.ID))
		_, err = store.Projects.Get(ctx, p2.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.ErrorIs(t, store.Projects.Delete(ctx, p2.ID), apperrors.ErrNotFound)
		assert.ErrorIs(t, store.Projects.Update(ctx, p2), apperrors.ErrNotFound)
	})

	t.Run("datasets round trip every value kind", func(t *testing.T) {
		p := testProject("datasets", 0)
		require.NoError(t, store.Projects.Create(ctx, p))

		ds := testDataset(p.ID, "sales", 0)
		require.NoError(t, store.Datasets.Save(ctx, ds))
		require.NoError(t, store.Datasets.Save(ctx, testDataset(p.ID, "customers", time.Second)))

		got, err := store.Datasets.Get(ctx, p.ID, "sales")
		require.NoError(t, err)
		assert.Equal(t, ds.DisplayName, got.DisplayName)
		assert.Equal(t, ds.RowCount, got.RowCount)
		assert.Equal(t, ds.ColumnNames(), got.ColumnNames())
		for i := 0; i < ds.RowCount; i++ {
			want, have := ds.Row(i), got.Row(i)
			for c := range want {
				assert.Equal(t, want[c].Kind, have[c].Kind, "row %d col %d", i, c)
				assert.Equal(t, 0, want[c].Compare(have[c]), "row %d col %d", i, c)
			}
		}
		assert.Equal(t, models.RoleDatetime, got.Column("seen").Role)

		list, err := store.Datasets.List(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "sales", list[0].ID)
		assert.Equal(t, "customers", list[1].ID)

		_, err = store.Datasets.Get(ctx, p.ID, "missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		require.NoError(t, store.Datasets.Delete(ctx, p.ID, "sales"))
		assert.ErrorIs(t, store.Datasets.Delete(ctx, p.ID, "sales"), apperrors.ErrNotFound)

		other := testProject("other", 0)
		require.NoError(t, store.Projects.Create(ctx, other))
		_, err = store.Datasets.Get(ctx, other.ID, "customers")
		assert.ErrorIs(t, err, apperrors.ErrNotFound, "datasets are scoped to their project")
	})

	t.Run("relationships", func(t *testing.T) {
		p := testProject("relationships", 0)
		require.NoError(t, store.Projects.Create(ctx, p))

		declared := testCandidate("A", "B", models.ProvenanceUser, 1)
		require.NoError(t, store.Relationships.SaveDeclared(ctx, p.ID, &declared))
		require.NoError(t, store.Relationships.ReplaceDetected(ctx, p.ID, "A", "B", []models.RelationshipCandidate{
			testCandidate("A", "B", models.ProvenanceDetected, 0.6),
		}))
		require.NoError(t, store.Relationships.ReplaceDetected(ctx, p.ID, "B", "C", []models.RelationshipCandidate{
			testCandidate("B", "C", models.ProvenanceDetected, 0.4),
		}))

		// Re-detecting in the reverse orientation supersedes the earlier A/B result.
		require.NoError(t, store.Relationships.ReplaceDetected(ctx, p.ID, "B", "A", []models.RelationshipCandidate{
			testCandidate("B", "A", models.ProvenanceDetected, 0.9),
		}))

		rels, err := store.Relationships.List(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, rels, 3)
		byID := make(map[string]models.RelationshipCandidate)
		for _, r := range rels {
			byID[r.ID] = r
		}
		assert.Contains(t, byID, "user:A:B")
		assert.Contains(t, byID, "detected:B:A")
		assert.Contains(t, byID, "detected:B:C")
		assert.NotContains(t, byID, "detected:A:B")
		assert.Equal(t, 2, byID["detected:B:A"].MatchingCount)
		assert.Equal(t, 1, byID["detected:B:A"].SourceUnmatched)

		// Declaring again with the same id updates in place.
		declared.MatchingCount = 5
		require.NoError(t, store.Relationships.SaveDeclared(ctx, p.ID, &declared))
		rels, err = store.Relationships.List(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, rels, 3)

		require.NoError(t, store.Relationships.DeleteTouching(ctx, p.ID, "A"))
		rels, err = store.Relationships.List(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		assert.Equal(t, "detected:B:C", rels[0].ID)
	})

	t.Run("conversations", func(t *testing.T) {
		p := testProject("chat", 0)
		require.NoError(t, store.Projects.Create(ctx, p))

		for i, content := range []string{"one", "two", "three"} {
			role := models.ChatRoleUser
			if i%2 == 1 {
				role = models.ChatRoleAssistant
			}
			msg := &models.ChatMessage{Role: role, Content: content, CreatedAt: testEpoch.Add(time.Duration(i) * time.Second)}
			require.NoError(t, store.Conversations.Append(ctx, p.ID, msg))
		}

		msgs, err := store.Conversations.List(ctx, p.ID, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "two", msgs[0].Content)
		assert.Equal(t, models.ChatRoleAssistant, msgs[0].Role)
		assert.Equal(t, "three", msgs[1].Content)

		all, err := store.Conversations.List(ctx, p.ID, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("deleting a project removes what it owns", func(t *testing.T) {
		p := testProject("teardown", 0)
		require.NoError(t, store.Projects.Create(ctx, p))
		require.NoError(t, store.Datasets.Save(ctx, testDataset(p.ID, "orders", 0)))
		declared := testCandidate("orders", "x", models.ProvenanceUser, 1)
		require.NoError(t, store.Relationships.SaveDeclared(ctx, p.ID, &declared))
		require.NoError(t, store.Conversations.Append(ctx, p.ID, &models.ChatMessage{Role: models.ChatRoleUser, Content: "hi", CreatedAt: testEpoch}))

		require.NoError(t, store.Projects.Delete(ctx, p.ID))

		datasets, err := store.Datasets.List(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, datasets)
		rels, err := store.Relationships.List(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, rels)
		msgs, err := store.Conversations.List(ctx, p.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}
