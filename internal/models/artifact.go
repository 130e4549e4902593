package models

import "time"

// PersonaImage is a cached artifact from a persona analysis run. Artifacts
// are scoped to an analysis_id epoch; a new epoch invalidates all of them.
type PersonaImage struct {
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	AnalysisID string    `json:"analysis_id"`
	ImageURL   string    `json:"image_url"`
	CachedAt   time.Time `json:"cached_at"`
}

// Key returns the identity part of the cache key for this artifact.
func (p PersonaImage) Key() string {
	return PersonaKey(p.Name, p.Role)
}

// PersonaKey builds the cache key identity for a persona name and role.
func PersonaKey(name, role string) string {
	return Slugify(name + " " + role)
}
