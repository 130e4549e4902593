package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fieldwork/internal/models"
	"fieldwork/internal/store"
)

var (
	personasRefresh bool
	personasClear   bool
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "Show persona portraits for the session's stakeholders",
	Long: `Show the stakeholder personas of the active session with their
portrait images.

Portraits are rendered by the backend and cached locally under the
analysis run they belong to; a new analysis run drops the whole cache.
Missing portraits are fetched when the backend is reachable and shown
as missing otherwise.

Examples:
  fieldwork personas
  fieldwork personas --refresh
  fieldwork personas --clear`,
	Args: cobra.NoArgs,
	RunE: runPersonas,
}

func init() {
	personasCmd.Flags().BoolVar(&personasRefresh, "refresh", false, "re-render portraits even when cached")
	personasCmd.Flags().BoolVar(&personasClear, "clear", false, "drop the local portrait cache and exit")
}

func runPersonas(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if personasClear {
		dropped, err := st.InvalidatePersonaImages(ctx)
		if err != nil {
			return fmt.Errorf("clear portrait cache: %w", err)
		}
		fmt.Printf("Dropped %d cached portrait(s).\n", dropped)
		return nil
	}

	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}

	q := sess.Questionnaire
	stakeholders := append([]models.Stakeholder{}, q.PrimaryStakeholders...)
	stakeholders = append(stakeholders, q.SecondaryStakeholders...)
	if len(stakeholders) == 0 {
		fmt.Println("No stakeholders on this session yet (add them with 'fieldwork import' or the backend analysis).")
		return nil
	}

	analysisID, err := st.AnalysisID(ctx)
	if err != nil {
		return fmt.Errorf("read portrait cache: %w", err)
	}

	fmt.Printf("Personas (%d):\n\n", len(stakeholders))
	fetched := 0
	for _, sh := range stakeholders {
		var img *models.PersonaImage
		if !personasRefresh && analysisID != "" {
			img, err = st.GetPersonaImage(ctx, analysisID, sh.Name, sh.Role)
			if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrCorrupt) {
				return fmt.Errorf("read portrait cache: %w", err)
			}
		}

		if img == nil {
			if !orch.Online() {
				fmt.Printf("  %s (%s)\n    portrait not cached; backend offline\n", sh.Name, sh.Role)
				continue
			}
			img, err = fetchPortrait(ctx, sess, sh)
			if err != nil {
				fmt.Printf("  %s (%s)\n    portrait unavailable: %v\n", sh.Name, sh.Role, err)
				continue
			}
			// The backend may have started a new analysis run; follow its
			// epoch for the remaining lookups.
			analysisID = img.AnalysisID
			fetched++
		}

		fmt.Printf("  %s (%s)\n    %s\n", sh.Name, sh.Role, img.ImageURL)
		if verbose && sh.Description != "" {
			fmt.Printf("    %s\n", sh.Description)
		}
	}

	if fetched > 0 {
		fmt.Printf("\nFetched %d new portrait(s).\n", fetched)
	}
	return nil
}

// fetchPortrait renders one portrait and caches it under the analysis epoch
// the backend reports.
func fetchPortrait(ctx context.Context, sess *models.Session, sh models.Stakeholder) (*models.PersonaImage, error) {
	resp, err := api.GeneratePersonaImage(ctx, sh.Name, sh.Role, sess.BusinessContext.Industry)
	if err != nil {
		return nil, err
	}

	img := models.PersonaImage{
		Name:       sh.Name,
		Role:       sh.Role,
		AnalysisID: resp.AnalysisID,
		ImageURL:   resp.ImageURL,
	}
	if err := st.PutPersonaImage(ctx, img); err != nil {
		return nil, fmt.Errorf("cache portrait: %w", err)
	}
	return &img, nil
}
