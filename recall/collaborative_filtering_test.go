package recall

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/rushteam/bookrec/core"
)

func sampleInteractions() []core.Interaction {
	return []core.Interaction{
		{UserID: "u1", ItemID: "b1", Rating: 5},
		{UserID: "u1", ItemID: "b2", Rating: 4},
		{UserID: "u2", ItemID: "b1", Rating: 5},
		{UserID: "u2", ItemID: "b3", Rating: 1},
	}
}

func TestCollaborativeModel_Recommend(t *testing.T) {
	m, err := BuildCollaborativeModel(context.Background(), sampleInteractions(), CollaborativeOptions{})
	if err != nil {
		t.Fatalf("BuildCollaborativeModel: %v", err)
	}

	nb, _ := m.Neighbors("u1")
	if !reflect.DeepEqual(nb, []string{"u2"}) {
		t.Fatalf("Neighbors(u1) = %v, want [u2]", nb)
	}

	got, err := m.Recommend("u1", 1)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b3" || got[0].Score != 1.0 {
		t.Fatalf("Recommend(u1, 1) = %+v, want [{b3 1}]", got)
	}

	got, _ = m.Recommend("u2", 5)
	if len(got) != 1 || got[0].ID != "b2" || got[0].Score != 4.0 {
		t.Fatalf("Recommend(u2, 5) = %+v, want [{b2 4}]", got)
	}
}

// 三个用户、K=2：u1 的两个近邻中只有一个给 b4 打分
func neighborMeanFixture() []core.Interaction {
	return []core.Interaction{
		{UserID: "u1", ItemID: "b1", Rating: 5},
		{UserID: "u2", ItemID: "b1", Rating: 4},
		{UserID: "u2", ItemID: "b4", Rating: 4},
		{UserID: "u3", ItemID: "b1", Rating: 3},
		{UserID: "u3", ItemID: "b5", Rating: 2},
		{UserID: "u3", ItemID: "b6", Rating: 2},
	}
}

func TestCollaborativeModel_NeighborMean(t *testing.T) {
	tests := []struct {
		name string
		mean string
		want []Scored
	}{
		{
			name: "all neighbors in denominator",
			mean: NeighborMeanAll,
			want: []Scored{{ID: "b4", Score: 2}, {ID: "b5", Score: 1}, {ID: "b6", Score: 1}},
		},
		{
			name: "raters only",
			mean: NeighborMeanRaters,
			want: []Scored{{ID: "b4", Score: 4}, {ID: "b5", Score: 2}, {ID: "b6", Score: 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := BuildCollaborativeModel(context.Background(), neighborMeanFixture(),
				CollaborativeOptions{KNeighbors: 2, NeighborMean: tt.mean})
			if err != nil {
				t.Fatalf("BuildCollaborativeModel: %v", err)
			}
			got, err := m.Recommend("u1", 10)
			if err != nil {
				t.Fatalf("Recommend: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Recommend(u1) = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCollaborativeModel_NeverReturnsRated(t *testing.T) {
	interactions := append(neighborMeanFixture(),
		core.Interaction{UserID: "u1", ItemID: "b4", Rating: 0}, // 显式 0 分也算已评分
	)
	m, err := BuildCollaborativeModel(context.Background(), interactions, CollaborativeOptions{KNeighbors: 2})
	if err != nil {
		t.Fatalf("BuildCollaborativeModel: %v", err)
	}
	got, _ := m.Recommend("u1", 10)
	for _, s := range got {
		if _, rated := m.Rating("u1", s.ID); rated {
			t.Errorf("Recommend returned rated item %s", s.ID)
		}
	}
	if r, ok := m.Rating("u1", "b4"); !ok || r != 0 {
		t.Errorf("Rating(u1,b4) = %v, %v; want 0, true", r, ok)
	}
}

func TestCollaborativeModel_DuplicateLastWins(t *testing.T) {
	interactions := []core.Interaction{
		{UserID: "u1", ItemID: "b1", Rating: 1},
		{UserID: "u1", ItemID: "b1", Rating: 5},
		{UserID: "u2", ItemID: "b1", Rating: 2},
	}
	m, err := BuildCollaborativeModel(context.Background(), interactions, CollaborativeOptions{})
	if err != nil {
		t.Fatalf("BuildCollaborativeModel: %v", err)
	}
	if r, _ := m.Rating("u1", "b1"); r != 5 {
		t.Errorf("Rating(u1,b1) = %v, want 5", r)
	}
}

func TestCollaborativeModel_NeighborTiesByRow(t *testing.T) {
	// u2、u3、u4 与 u1 的相似度相同，K=2 时取行号最小的两个
	interactions := []core.Interaction{
		{UserID: "u1", ItemID: "b1", Rating: 1},
		{UserID: "u4", ItemID: "b1", Rating: 2},
		{UserID: "u3", ItemID: "b1", Rating: 3},
		{UserID: "u2", ItemID: "b1", Rating: 4},
	}
	m, err := BuildCollaborativeModel(context.Background(), interactions, CollaborativeOptions{KNeighbors: 2})
	if err != nil {
		t.Fatalf("BuildCollaborativeModel: %v", err)
	}
	nb, _ := m.Neighbors("u1")
	if !reflect.DeepEqual(nb, []string{"u2", "u3"}) {
		t.Errorf("Neighbors(u1) = %v, want [u2 u3]", nb)
	}
}

func TestCollaborativeModel_SingleUser(t *testing.T) {
	m, err := BuildCollaborativeModel(context.Background(),
		[]core.Interaction{{UserID: "u1", ItemID: "b1", Rating: 3}}, CollaborativeOptions{})
	if err != nil {
		t.Fatalf("BuildCollaborativeModel: %v", err)
	}
	got, err := m.Recommend("u1", 5)
	if err != nil || len(got) != 0 {
		t.Errorf("Recommend() = %+v, %v; want empty", got, err)
	}
}

func TestCollaborativeModel_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := BuildCollaborativeModel(ctx, nil, CollaborativeOptions{}); !core.IsEmptyCorpus(err) {
		t.Errorf("empty interactions error = %v, want EMPTY_CORPUS", err)
	}
	bad := []core.Interaction{{UserID: "", ItemID: "b1", Rating: 1}}
	if _, err := BuildCollaborativeModel(ctx, bad, CollaborativeOptions{}); !core.IsInvalidInput(err) {
		t.Errorf("empty user id error = %v, want INVALID_INPUT", err)
	}
	nan := []core.Interaction{{UserID: "u1", ItemID: "b1", Rating: math.NaN()}}
	if _, err := BuildCollaborativeModel(ctx, nan, CollaborativeOptions{}); !core.IsInvalidInput(err) {
		t.Errorf("NaN rating error = %v, want INVALID_INPUT", err)
	}
	if _, err := BuildCollaborativeModel(ctx, sampleInteractions(), CollaborativeOptions{NeighborMean: "median"}); !core.IsInvalidInput(err) {
		t.Errorf("unknown neighbor mean error = %v, want INVALID_INPUT", err)
	}

	m, _ := BuildCollaborativeModel(ctx, sampleInteractions(), CollaborativeOptions{})
	if _, err := m.Recommend("ghost", 1); !core.IsNotFound(err) {
		t.Errorf("unknown user error = %v, want NOT_FOUND", err)
	}
}

func TestCollaborativeModel_StateRoundTrip(t *testing.T) {
	m, _ := BuildCollaborativeModel(context.Background(), neighborMeanFixture(), CollaborativeOptions{KNeighbors: 2})
	restored, err := CollaborativeModelFromState(m.State())
	if err != nil {
		t.Fatalf("CollaborativeModelFromState: %v", err)
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		want, _ := m.Recommend(u, 5)
		got, _ := restored.Recommend(u, 5)
		if !reflect.DeepEqual(want, got) {
			t.Errorf("Recommend(%s) after restore = %+v, want %+v", u, got, want)
		}
	}
	if !reflect.DeepEqual(m.Interactions(), restored.Interactions()) {
		t.Errorf("Interactions differ after restore")
	}

	st := m.State()
	st.RowRatings = st.RowRatings[:1]
	if _, err := CollaborativeModelFromState(st); !core.IsDimensionMismatch(err) {
		t.Errorf("inconsistent rows error = %v, want DIMENSION_MISMATCH", err)
	}
}

func TestUserCFRecall(t *testing.T) {
	m, _ := BuildCollaborativeModel(context.Background(), sampleInteractions(), CollaborativeOptions{})
	r := &UserCFRecall{Model: m}

	items, err := r.Recall(context.Background(), &core.RecommendContext{UserID: "u1", K: 3})
	if err != nil || len(items) != 1 || items[0].ID != "b3" {
		t.Fatalf("Recall(u1) = %v, %v", items, err)
	}
	items, err = r.Recall(context.Background(), &core.RecommendContext{UserID: "ghost", K: 3})
	if err != nil || items != nil {
		t.Errorf("Recall(unknown) = %v, %v; want nil, nil", items, err)
	}
}
