package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/aitutor/internal/gateway"
	"github.com/pavelanni/aitutor/internal/model"
)

type fakeService struct {
	analytics    map[int64]*model.CourseAnalytics
	analyticsErr error

	profile    *model.StudentProfile
	profileErr error
	updates    []model.ProfileUpdate
	updateErr  error

	kb       *model.KnowledgeBaseSnapshot
	kbErr    error
	clears   int
	clearErr error

	ingestErr error
	courses   []model.Course
}

func (f *fakeService) Analytics(_ context.Context, courseID int64) (*model.CourseAnalytics, error) {
	if f.analyticsErr != nil {
		return nil, f.analyticsErr
	}
	return f.analytics[courseID], nil
}

func (f *fakeService) Profile(context.Context, int64) (*model.StudentProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeService) UpdateProfile(_ context.Context, id int64, upd model.ProfileUpdate) (*model.StudentProfile, error) {
	f.updates = append(f.updates, upd)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p := *f.profile
	p.ID = id
	p.LearningStyle = *upd.LearningStyle
	p.Strengths = upd.Strengths
	p.Weaknesses = upd.Weaknesses
	return &p, nil
}

func (f *fakeService) KnowledgeBase(context.Context, int64) (*model.KnowledgeBaseSnapshot, error) {
	if f.kbErr != nil {
		return nil, f.kbErr
	}
	return f.kb, nil
}

func (f *fakeService) ClearKnowledgeBase(context.Context, int64) error {
	f.clears++
	return f.clearErr
}

func (f *fakeService) Ingest(context.Context, int64) (*model.IngestResult, error) {
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &model.IngestResult{Status: "success", ChunksCount: 4}, nil
}

func (f *fakeService) Courses(context.Context) ([]model.Course, error) {
	return f.courses, nil
}

func course2() *model.CourseAnalytics {
	return &model.CourseAnalytics{
		CourseID:      2,
		TotalStudents: 2,
		AverageScore:  62.5,
		Students: []model.StudentAnalyticsRow{
			{ID: 3, Name: "Alice", LearningStyle: "Visual", AvgScore: 85, QuizScores: map[string]float64{"Quiz 1": 85}},
			{ID: 4, Name: "Bob", LearningStyle: "Textual", AvgScore: 40},
		},
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		avg  float64
		want Status
	}{
		{85, StatusOnTrack},
		{80, StatusOnTrack},
		{79.9, StatusNeedsSupport},
		{60, StatusNeedsSupport},
		{50, StatusNeedsSupport},
		{49.9, StatusAtRisk},
		{40, StatusAtRisk},
		{0, StatusAtRisk},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StatusFor(tc.avg), "avg %v", tc.avg)
	}
	assert.Equal(t, "On Track", string(StatusFor(85)))
	assert.Equal(t, "Needs Support", string(StatusFor(60)))
	assert.Equal(t, "At Risk", string(StatusFor(40)))
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Math,  Reading ,,", []string{"Math", "Reading"}},
		{"", []string{}},
		{" , , ", []string{}},
		{"Art, Art, Music", []string{"Art", "Music"}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SplitList(tc.in), "input %q", tc.in)
	}
}

func TestLoadFailureKeepsTable(t *testing.T) {
	svc := &fakeService{analytics: map[int64]*model.CourseAnalytics{2: course2()}}
	d := New(svc)
	require.NoError(t, d.Load(context.Background(), 2))
	require.Len(t, d.Rows(), 2)

	svc.analyticsErr = &gateway.RemoteError{Op: "analytics", Kind: gateway.KindService, Status: 500}
	err := d.Load(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, gateway.IsService(err))
	assert.Len(t, d.Rows(), 2)
	assert.False(t, d.Snapshot().Loading)
}

func TestSaveProfileScenario(t *testing.T) {
	svc := &fakeService{
		analytics: map[int64]*model.CourseAnalytics{2: course2()},
		profile:   &model.StudentProfile{ID: 3, Name: "Alice", Strengths: []string{"Algebra"}, Weaknesses: nil, Interests: []string{"Art"}},
	}
	d := New(svc)
	require.NoError(t, d.Load(context.Background(), 2))

	require.NoError(t, d.EditProfile(context.Background(), 3, "Alice"))
	form := d.Snapshot().Profile
	require.NotNil(t, form)
	assert.Equal(t, DefaultLearningStyle, form.LearningStyle)
	assert.Equal(t, "Algebra", form.Strengths)
	assert.Equal(t, "", form.Weaknesses)

	require.NoError(t, d.SetProfileForm("Auditory", "Math,  Reading ,,", " Geometry "))
	require.NoError(t, d.SaveProfile(context.Background()))

	require.Len(t, svc.updates, 1)
	upd := svc.updates[0]
	assert.Equal(t, "Auditory", *upd.LearningStyle)
	assert.Equal(t, []string{"Math", "Reading"}, upd.Strengths)
	assert.Equal(t, []string{"Geometry"}, upd.Weaknesses)
	assert.Nil(t, upd.Interests, "interests are left untouched")

	rows := d.Rows()
	assert.Equal(t, "Auditory", rows[0].LearningStyle)
	assert.Equal(t, float64(85), rows[0].AvgScore, "only the learning style is patched")
	assert.Equal(t, "Textual", rows[1].LearningStyle)
	assert.Nil(t, d.Snapshot().Profile, "modal closes on success")
}

func TestSaveProfileFailureKeepsModal(t *testing.T) {
	svc := &fakeService{
		analytics: map[int64]*model.CourseAnalytics{2: course2()},
		profile:   &model.StudentProfile{ID: 3, Name: "Alice", LearningStyle: "Visual"},
		updateErr: errors.New("boom"),
	}
	d := New(svc)
	require.NoError(t, d.Load(context.Background(), 2))
	require.NoError(t, d.EditProfile(context.Background(), 3, "Alice"))

	require.Error(t, d.SaveProfile(context.Background()))
	assert.NotNil(t, d.Snapshot().Profile)
	assert.Equal(t, "Visual", d.Rows()[0].LearningStyle)
}

func TestProfileWithoutModal(t *testing.T) {
	d := New(&fakeService{})
	assert.ErrorIs(t, d.SaveProfile(context.Background()), ErrNoProfile)
	assert.ErrorIs(t, d.SetProfileForm("a", "b", "c"), ErrNoProfile)
}

func TestEditProfileFailureKeepsModalClosed(t *testing.T) {
	d := New(&fakeService{profileErr: errors.New("not found")})
	require.Error(t, d.EditProfile(context.Background(), 3, "Alice"))
	assert.Nil(t, d.Snapshot().Profile)
}

func TestCancelProfileDiscards(t *testing.T) {
	svc := &fakeService{profile: &model.StudentProfile{ID: 3, Name: "Alice"}}
	d := New(svc)
	require.NoError(t, d.EditProfile(context.Background(), 3, "Alice"))
	require.NoError(t, d.SetProfileForm("Visual", "x", "y"))

	d.CancelProfile()
	assert.Nil(t, d.Snapshot().Profile)
	assert.Empty(t, svc.updates)
}

func TestClearKnowledgeBase(t *testing.T) {
	svc := &fakeService{
		analytics: map[int64]*model.CourseAnalytics{2: course2()},
		kb: &model.KnowledgeBaseSnapshot{CourseID: 2, DocumentCount: 14, Sources: []model.KnowledgeSource{
			{Name: "biology.md", Type: "file", ChunkCount: 14},
		}},
	}
	d := New(svc)
	require.NoError(t, d.Load(context.Background(), 2))
	require.NoError(t, d.OpenKnowledgeBase(context.Background()))
	assert.Equal(t, 14, d.Snapshot().KB.DocumentCount)

	assert.ErrorIs(t, d.ClearKnowledgeBase(context.Background(), false), ErrNotConfirmed)
	assert.Zero(t, svc.clears, "no request without confirmation")
	assert.Equal(t, 14, d.Snapshot().KB.DocumentCount)

	svc.clearErr = errors.New("boom")
	require.Error(t, d.ClearKnowledgeBase(context.Background(), true))
	assert.Equal(t, 14, d.Snapshot().KB.DocumentCount, "failure keeps the snapshot")

	svc.clearErr = nil
	svc.kbErr = errors.New("must not re-fetch")
	require.NoError(t, d.ClearKnowledgeBase(context.Background(), true))
	kb := d.Snapshot().KB
	require.NotNil(t, kb)
	assert.Equal(t, int64(2), kb.CourseID)
	assert.Zero(t, kb.DocumentCount)
	assert.Empty(t, kb.Sources)
	assert.Equal(t, 2, svc.clears)
}

func TestOpenKnowledgeBaseFailureKeepsSnapshot(t *testing.T) {
	svc := &fakeService{kb: &model.KnowledgeBaseSnapshot{CourseID: 2, DocumentCount: 3}}
	d := New(svc)
	require.NoError(t, d.OpenKnowledgeBase(context.Background()))

	svc.kbErr = errors.New("down")
	require.Error(t, d.OpenKnowledgeBase(context.Background()))
	assert.Equal(t, 3, d.Snapshot().KB.DocumentCount)
	assert.False(t, d.Snapshot().KBLoading)
}

func TestIngestCarriesDetail(t *testing.T) {
	svc := &fakeService{ingestErr: &gateway.RemoteError{Op: "ingest", Kind: gateway.KindService, Status: 404, Detail: "no content found"}}
	d := New(svc)

	_, err := d.Ingest(context.Background())
	require.Error(t, err)
	assert.Equal(t, "no content found", gateway.DetailOf(err))
	assert.False(t, d.Snapshot().Ingesting)

	svc.ingestErr = nil
	res, err := d.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.ChunksCount)
}
