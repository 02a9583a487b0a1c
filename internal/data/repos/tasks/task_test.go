package tasks

import (
	"context"
	"encoding/json"
	"testing"

	"gorm.io/datatypes"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos/testutil"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
)

func TestTaskRepoListOrdersByRelevance(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	u := testutil.SeedUser(t, ctx, tx, "taskrepo@example.com")
	repo := NewTaskRepo(db, testutil.Logger(t))

	_, err := repo.Create(dbc, []*types.Task{
		{UserID: u.ID, MessageID: "m", Title: "low", Deadline: "No Deadline", Priority: "low", RelevanceScore: 0.1},
		{UserID: u.ID, MessageID: "m", Title: "high", Deadline: "No Deadline", Priority: "high", RelevanceScore: 0.9},
		{UserID: u.ID, MessageID: "m", Title: "mid", Deadline: "No Deadline", Priority: "medium", RelevanceScore: 0.5},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.ListByUser(dbc, u.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 3 || got[0].Title != "high" || got[2].Title != "low" {
		t.Fatalf("ListByUser: unexpected order: %+v", got)
	}

	ok, err := repo.Delete(dbc, u.ID, got[0].ID)
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	gone, err := repo.GetByID(dbc, u.ID, got[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if gone != nil {
		t.Fatalf("GetByID: expected nil after delete")
	}
}

func TestFeaturesAndUserModelRepos(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	u := testutil.SeedUser(t, ctx, tx, "featrepo@example.com")
	tasks := NewTaskRepo(db, testutil.Logger(t))
	created, err := tasks.Create(dbc, []*types.Task{{UserID: u.ID, MessageID: "m", Title: "t", Deadline: "No Deadline", Priority: "medium"}})
	if err != nil {
		t.Fatalf("Create task: %v", err)
	}

	feats := NewFeaturesRepo(db, testutil.Logger(t))
	row := &types.Features{
		TaskID:         created[0].ID,
		UserID:         u.ID,
		Utility:        datatypes.JSON(`{"priority":"high"}`),
		Cost:           datatypes.JSON(`{}`),
		MappingVersion: 1,
	}
	if err := feats.Create(dbc, []*types.Features{row}); err != nil {
		t.Fatalf("Create features: %v", err)
	}
	if err := feats.Create(dbc, []*types.Features{{TaskID: created[0].ID, UserID: u.ID, Utility: datatypes.JSON(`{"priority":"low"}`)}}); err != nil {
		t.Fatalf("Create features (dup): %v", err)
	}
	got, err := feats.GetByTaskID(dbc, created[0].ID)
	if err != nil {
		t.Fatalf("GetByTaskID: %v", err)
	}
	if got == nil {
		t.Fatalf("GetByTaskID: expected row")
	}
	var util map[string]any
	if err := json.Unmarshal(got.Utility, &util); err != nil {
		t.Fatalf("decode utility: %v", err)
	}
	if util["priority"] != "high" {
		t.Fatalf("GetByTaskID: features must be immutable, got %v", util)
	}

	models := NewUserModelRepo(db, testutil.Logger(t))
	if err := models.Upsert(dbc, &types.UserModel{UserID: u.ID, UtilityModel: datatypes.JSON(`{}`), CostModel: datatypes.JSON(`{}`), MappingVersion: 1, Updates: 1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := models.Upsert(dbc, &types.UserModel{UserID: u.ID, UtilityModel: datatypes.JSON(`{}`), CostModel: datatypes.JSON(`{}`), MappingVersion: 1, Updates: 2}); err != nil {
		t.Fatalf("Upsert (again): %v", err)
	}
	m, err := models.Get(dbc, u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m == nil || m.Updates != 2 {
		t.Fatalf("Get: unexpected result: %+v", m)
	}
}
