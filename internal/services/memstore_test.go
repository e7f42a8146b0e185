package services

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/db/repositories"
)

var errStore = errors.New("store unavailable")

// memDB is an in-memory stand-in for the PostgreSQL-backed repositories. Each store
// view below exposes the subset of methods one repository has.
type memDB struct {
	mu             sync.Mutex
	nextID         int64
	modules        []*models.ModuleVersion
	tags           []models.Tag
	deps           [][2]string
	keywords       []models.ModuleKeyword
	stars          [][2]string
	maintainers    map[string][]string
	npmMaintainers map[string][]string
	users          map[string]models.User
	touched        []string
	failures       map[string]error
}

func newMemDB() *memDB {
	return &memDB{
		maintainers:    map[string][]string{},
		npmMaintainers: map[string][]string{},
		users:          map[string]models.User{},
		failures:       map[string]error{},
	}
}

func (db *memDB) fail(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[op] = err
}

func (db *memDB) check(op string) error {
	return db.failures[op]
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

// publishLocal stores a version flagged as published here and tags it latest.
func (db *memDB) publishLocal(name, version string, extra models.Manifest) *models.ModuleVersion {
	pkg := models.Manifest{"name": name, "version": version, models.PublishedLocallyKey: true}
	for k, v := range extra {
		pkg[k] = v
	}
	return db.put(name, version, pkg)
}

// publishUpstream stores a version synced from upstream and tags it latest.
func (db *memDB) publishUpstream(name, version string, extra models.Manifest) *models.ModuleVersion {
	pkg := models.Manifest{"name": name, "version": version}
	for k, v := range extra {
		pkg[k] = v
	}
	return db.put(name, version, pkg)
}

func (db *memDB) put(name, version string, pkg models.Manifest) *models.ModuleVersion {
	mod := &models.ModuleVersion{Name: name, Version: version, Package: pkg, Description: pkg.Description()}
	_, _ = memModules{db}.Save(context.Background(), mod)
	_, _ = memTags{db}.Assign(context.Background(), name, models.LatestTag, version)
	return mod
}

func (db *memDB) findModule(name, version string) *models.ModuleVersion {
	for _, m := range db.modules {
		if m.Name == name && m.Version == version {
			return m
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Module store
// ---------------------------------------------------------------------------

type memModules struct{ db *memDB }

func (s memModules) Get(_ context.Context, name, version string) (*models.ModuleVersion, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("modules.Get"); err != nil {
		return nil, err
	}
	return s.db.findModule(name, version), nil
}

func (s memModules) GetLatestByName(_ context.Context, name string) (*models.ModuleVersion, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("modules.GetLatestByName"); err != nil {
		return nil, err
	}
	for _, t := range s.db.tags {
		if t.Name == name && t.Tag == models.LatestTag {
			for _, m := range s.db.modules {
				if m.ID == t.ModuleID {
					return m, nil
				}
			}
		}
	}
	var latest *models.ModuleVersion
	for _, m := range s.db.modules {
		if m.Name == name && (latest == nil || m.ID > latest.ID) {
			latest = m
		}
	}
	return latest, nil
}

func (s memModules) TouchLastModified(_ context.Context, name string) (*time.Time, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("modules.TouchLastModified"); err != nil {
		return nil, err
	}
	s.db.touched = append(s.db.touched, name)
	now := time.Now()
	return &now, nil
}

func (s memModules) Save(_ context.Context, mod *models.ModuleVersion) (*models.SaveResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("modules.Save"); err != nil {
		return nil, err
	}
	now := time.Now()
	if existing := s.db.findModule(mod.Name, mod.Version); existing != nil {
		existing.Package = mod.Package
		existing.GmtModified = now
		return &models.SaveResult{ID: existing.ID, GmtModified: now}, nil
	}
	stored := *mod
	stored.ID = s.db.id()
	if stored.Description == "" {
		stored.Description = stored.Package.Description()
	}
	stored.GmtCreate, stored.GmtModified = now, now
	s.db.modules = append(s.db.modules, &stored)
	return &models.SaveResult{ID: stored.ID, GmtModified: now}, nil
}

func (s memModules) ListByName(_ context.Context, name string) ([]*models.ModuleVersion, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.ModuleVersion
	for i := len(s.db.modules) - 1; i >= 0; i-- {
		if s.db.modules[i].Name == name {
			out = append(out, s.db.modules[i])
		}
	}
	return out, nil
}

func (s memModules) RemoveByNameAndVersions(_ context.Context, name string, versions []string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.modules)
	s.db.modules = slices.DeleteFunc(s.db.modules, func(m *models.ModuleVersion) bool {
		return m.Name == name && slices.Contains(versions, m.Version)
	})
	return int64(before - len(s.db.modules)), nil
}

func (s memModules) RemoveByName(_ context.Context, name string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("modules.RemoveByName"); err != nil {
		return 0, err
	}
	before := len(s.db.modules)
	s.db.modules = slices.DeleteFunc(s.db.modules, func(m *models.ModuleVersion) bool { return m.Name == name })
	return int64(before - len(s.db.modules)), nil
}

func (s memModules) ListPublicNamesByAuthor(_ context.Context, user string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var names []string
	for _, m := range s.db.modules {
		if m.Author == user && !models.IsScopedName(m.Name) && !slices.Contains(names, m.Name) {
			names = append(names, m.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s memModules) ListSummariesByIDs(_ context.Context, ids []int64) ([]models.ModuleSummary, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("modules.ListSummariesByIDs"); err != nil {
		return nil, err
	}
	out := []models.ModuleSummary{}
	for _, m := range s.db.modules {
		if slices.Contains(ids, m.ID) {
			out = append(out, models.ModuleSummary{Name: m.Name, Description: m.Description})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---------------------------------------------------------------------------
// Tag resolver
// ---------------------------------------------------------------------------

type memTags struct{ db *memDB }

func (s memTags) Assign(_ context.Context, name, tag, version string) (*models.TagResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	mod := s.db.findModule(name, version)
	if mod == nil {
		return nil, repositories.ErrConstraintViolation
	}
	for i := range s.db.tags {
		if s.db.tags[i].Name == name && s.db.tags[i].Tag == tag {
			s.db.tags[i].ModuleID, s.db.tags[i].Version = mod.ID, version
			return &models.TagResult{ID: s.db.tags[i].ID, ModuleID: mod.ID}, nil
		}
	}
	t := models.Tag{ID: s.db.id(), Name: name, Tag: tag, ModuleID: mod.ID, Version: version, GmtModified: time.Now()}
	s.db.tags = append(s.db.tags, t)
	return &models.TagResult{ID: t.ID, ModuleID: mod.ID}, nil
}

func (s memTags) get(name, tag string) *models.Tag {
	for i := range s.db.tags {
		if s.db.tags[i].Name == name && s.db.tags[i].Tag == tag {
			return &s.db.tags[i]
		}
	}
	return nil
}

func (s memTags) ListByName(_ context.Context, name string) ([]models.Tag, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Tag
	for _, t := range s.db.tags {
		if t.Name == name {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s memTags) RemoveByIDs(_ context.Context, ids []int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.tags)
	s.db.tags = slices.DeleteFunc(s.db.tags, func(t models.Tag) bool { return slices.Contains(ids, t.ID) })
	return int64(before - len(s.db.tags)), nil
}

func (s memTags) RemoveByNameAndTags(_ context.Context, name string, tags []string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.tags)
	s.db.tags = slices.DeleteFunc(s.db.tags, func(t models.Tag) bool {
		return t.Name == name && slices.Contains(tags, t.Tag)
	})
	return int64(before - len(s.db.tags)), nil
}

func (s memTags) RemoveByName(_ context.Context, name string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.tags)
	s.db.tags = slices.DeleteFunc(s.db.tags, func(t models.Tag) bool { return t.Name == name })
	return int64(before - len(s.db.tags)), nil
}

func (s memTags) names(filter func(models.Tag) bool) []string {
	var out []string
	for _, t := range s.db.tags {
		if filter(t) && !models.IsScopedName(t.Name) && !slices.Contains(out, t.Name) {
			out = append(out, t.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (s memTags) ListAllPublicNames(_ context.Context) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.names(func(models.Tag) bool { return true }), nil
}

func (s memTags) ListPublicNamesSince(_ context.Context, since time.Time) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.names(func(t models.Tag) bool { return t.GmtModified.After(since) }), nil
}

func (s memTags) latest(filter func(models.Tag) bool) []models.Tag {
	var out []models.Tag
	for _, t := range s.db.tags {
		if t.Tag == models.LatestTag && filter(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s memTags) ListLatestByNames(_ context.Context, names []string) ([]models.Tag, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.latest(func(t models.Tag) bool { return slices.Contains(names, t.Name) }), nil
}

func (s memTags) ListLatestByNamePrefix(_ context.Context, prefix string) ([]models.Tag, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.latest(func(t models.Tag) bool { return strings.HasPrefix(t.Name, prefix) }), nil
}

// likeToRegexp translates a LIKE pattern with backslash escapes.
func likeToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func (s memTags) SearchLatestModuleIDs(_ context.Context, pattern string, limit int) ([]int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("tags.SearchLatestModuleIDs"); err != nil {
		return nil, err
	}
	re := likeToRegexp(pattern)
	var ids []int64
	for _, t := range s.latest(func(t models.Tag) bool { return re.MatchString(t.Name) }) {
		if len(ids) == limit {
			break
		}
		ids = append(ids, t.ModuleID)
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Dependencies, keywords, stars
// ---------------------------------------------------------------------------

type memDeps struct{ db *memDB }

func (s memDeps) AddBatch(_ context.Context, name string, deps []string) ([]*models.ModuleDependency, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("deps.AddBatch"); err != nil {
		return nil, err
	}
	var out []*models.ModuleDependency
	for _, d := range deps {
		edge := [2]string{name, d}
		if !slices.Contains(s.db.deps, edge) {
			s.db.deps = append(s.db.deps, edge)
		}
		out = append(out, &models.ModuleDependency{Name: name, Dependency: d})
	}
	return out, nil
}

func (s memDeps) RemoveByName(_ context.Context, name string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.deps)
	s.db.deps = slices.DeleteFunc(s.db.deps, func(e [2]string) bool { return e[0] == name })
	return int64(before - len(s.db.deps)), nil
}

type memKeywords struct{ db *memDB }

func (s memKeywords) AddKeywords(_ context.Context, name, description string, words []string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, w := range words {
		s.db.keywords = append(s.db.keywords, models.ModuleKeyword{ID: s.db.id(), Keyword: w, Name: name, Description: description})
	}
	return nil
}

func (s memKeywords) FindByKeyword(_ context.Context, keyword string, limit int) ([]models.ModuleKeyword, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.ModuleKeyword
	for i := len(s.db.keywords) - 1; i >= 0 && len(out) < limit; i-- {
		if s.db.keywords[i].Keyword == keyword {
			out = append(out, s.db.keywords[i])
		}
	}
	return out, nil
}

func (s memKeywords) RemoveByName(_ context.Context, name string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.keywords)
	s.db.keywords = slices.DeleteFunc(s.db.keywords, func(k models.ModuleKeyword) bool { return k.Name == name })
	return int64(before - len(s.db.keywords)), nil
}

type memStars struct{ db *memDB }

func (s memStars) RemoveByName(_ context.Context, name string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	before := len(s.db.stars)
	s.db.stars = slices.DeleteFunc(s.db.stars, func(e [2]string) bool { return e[0] == name })
	return int64(before - len(s.db.stars)), nil
}

// ---------------------------------------------------------------------------
// Maintainer lists and users
// ---------------------------------------------------------------------------

type memMaintainers struct {
	db  *memDB
	npm bool
}

func (s memMaintainers) lists() map[string][]string {
	if s.npm {
		return s.db.npmMaintainers
	}
	return s.db.maintainers
}

func (s memMaintainers) ListByName(_ context.Context, name string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("maintainers.ListByName"); err != nil {
		return nil, err
	}
	return slices.Clone(s.lists()[name]), nil
}

func (s memMaintainers) ListByUser(_ context.Context, user string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var names []string
	for name, users := range s.lists() {
		if slices.Contains(users, user) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s memMaintainers) Add(_ context.Context, name string, users []string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("maintainers.Add"); err != nil {
		return nil, err
	}
	added := []string{}
	for _, u := range users {
		if !slices.Contains(s.lists()[name], u) {
			s.lists()[name] = append(s.lists()[name], u)
			added = append(added, u)
		}
	}
	return added, nil
}

func (s memMaintainers) Update(_ context.Context, name string, users []string) ([]string, []string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	current := s.lists()[name]
	added, removed := []string{}, []string{}
	for _, u := range current {
		if !slices.Contains(users, u) {
			removed = append(removed, u)
		}
	}
	for _, u := range users {
		if !slices.Contains(current, u) {
			added = append(added, u)
		}
	}
	s.lists()[name] = slices.Clone(users)
	return added, removed, nil
}

func (s memMaintainers) RemoveAll(_ context.Context, name string) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	removed := s.lists()[name]
	delete(s.lists(), name)
	if removed == nil {
		removed = []string{}
	}
	return removed, nil
}

type memUsers struct{ db *memDB }

func (s memUsers) ListByNames(_ context.Context, names []string) ([]models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.User
	for _, n := range names {
		if u, ok := s.db.users[n]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

type testServices struct {
	db          *memDB
	maintainers *MaintainerService
	search      *SearchService
	packages    *PackageService
	publish     *PublishService
}

func newTestServices() *testServices {
	db := newMemDB()
	modules := memModules{db}
	tags := memTags{db}
	local := memMaintainers{db: db}
	npm := memMaintainers{db: db, npm: true}

	maintainers := NewMaintainerService(local, modules, memUsers{db})
	packages := NewPackageService(PackageStores{
		Modules:        modules,
		Tags:           tags,
		Dependencies:   memDeps{db},
		Keywords:       memKeywords{db},
		Stars:          memStars{db},
		Maintainers:    local,
		NpmMaintainers: npm,
	})
	return &testServices{
		db:          db,
		maintainers: maintainers,
		search:      NewSearchService(tags, memKeywords{db}, modules, SearchConfig{}),
		packages:    packages,
		publish:     NewPublishService(modules, tags, memDeps{db}, maintainers, packages),
	}
}
