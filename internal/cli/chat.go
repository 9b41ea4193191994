package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/tinybeatz/internal/models"
)

const (
	chatWelcome = "Welcome! Tell me how you're vibing/feeling and I'll recommend music!"
	chatAgain   = "You can enter another vibe/feeling or press Enter to exit:"
	chatGoodbye = "Thank you for using Tiny Beatz! Enjoy your music!"
)

// RecommendFunc produces recommendations for one request.
type RecommendFunc func(ctx context.Context, req *models.RecommendRequest) (*models.RecommendResponse, error)

// RunChat reads one mood per line from in and writes recommendations to out
// until an empty line, EOF or ctx cancellation. Request errors are printed and
// the loop continues.
func RunChat(ctx context.Context, in io.Reader, out io.Writer, k, tracksPerGenre int, recommend RecommendFunc) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, chatWelcome)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := recommend(ctx, &models.RecommendRequest{Query: line, K: k, TracksPerGenre: tracksPerGenre})
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		} else {
			_ = WriteRecommendations(out, resp, OutputText)
		}
		fmt.Fprintln(out, chatAgain)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fmt.Fprintln(out, chatGoodbye)
	return nil
}
