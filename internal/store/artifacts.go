package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldwork/internal/models"
)

// Persona images are cached under "artifact/persona/<analysis_id>/<key>".
// Only one analysis epoch is kept; writing under a new analysis_id drops
// every image from the previous one.
const (
	personaPrefix = "artifact/persona/"
	analysisIDKey = metaPrefix + "analysis_id"
)

func personaImageKey(analysisID, key string) string {
	return personaPrefix + analysisID + "/" + key
}

// AnalysisID returns the analysis epoch the cache currently holds, or ""
// when nothing is cached.
func (s *Store) AnalysisID(ctx context.Context) (string, error) {
	var id string
	err := s.Get(ctx, analysisIDKey, &id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// PutPersonaImage caches one persona image. A new analysis_id invalidates
// the whole cache before the write.
func (s *Store) PutPersonaImage(ctx context.Context, img models.PersonaImage) error {
	if img.AnalysisID == "" {
		return fmt.Errorf("put persona image: missing analysis_id")
	}

	current, err := s.AnalysisID(ctx)
	if err != nil {
		return err
	}
	if current != img.AnalysisID {
		if current != "" {
			dropped, err := s.InvalidatePersonaImages(ctx)
			if err != nil {
				return err
			}
			slog.Info("persona cache invalidated",
				"old_analysis_id", current,
				"new_analysis_id", img.AnalysisID,
				"dropped", dropped)
		}
		if err := s.Put(ctx, analysisIDKey, img.AnalysisID); err != nil {
			return err
		}
	}

	if img.CachedAt.IsZero() {
		img.CachedAt = time.Now().UTC()
	}
	return s.Put(ctx, personaImageKey(img.AnalysisID, img.Key()), img)
}

// GetPersonaImage returns the cached image for a persona name and role
// within the given analysis epoch. ErrNotFound means a cache miss.
func (s *Store) GetPersonaImage(ctx context.Context, analysisID, name, role string) (*models.PersonaImage, error) {
	var img models.PersonaImage
	key := personaImageKey(analysisID, models.PersonaKey(name, role))
	if err := s.Get(ctx, key, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// ListPersonaImages returns every cached image of the current epoch.
func (s *Store) ListPersonaImages(ctx context.Context) ([]models.PersonaImage, error) {
	analysisID, err := s.AnalysisID(ctx)
	if err != nil {
		return nil, err
	}
	if analysisID == "" {
		return nil, nil
	}

	keys, err := s.ListKeys(ctx, personaPrefix+analysisID+"/")
	if err != nil {
		return nil, err
	}

	images := make([]models.PersonaImage, 0, len(keys))
	for _, key := range keys {
		var img models.PersonaImage
		if err := s.Get(ctx, key, &img); err != nil {
			if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrNotFound) {
				slog.Warn("skipping unreadable persona image", "key", key, "error", err)
				continue
			}
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// InvalidatePersonaImages drops the whole persona cache, all epochs, and
// clears the stored analysis_id. Returns the number of images removed.
func (s *Store) InvalidatePersonaImages(ctx context.Context) (int64, error) {
	dropped, err := s.DeletePrefix(ctx, personaPrefix)
	if err != nil {
		return 0, err
	}
	if err := s.Delete(ctx, analysisIDKey); err != nil {
		return dropped, err
	}
	return dropped, nil
}
