package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/osa030/slidecast/internal/app/export"
	"github.com/osa030/slidecast/internal/app/voice"
	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/config"
)

// runBuild writes the slide JSON for a Markdown file.
func runBuild(cfg *config.Config) error {
	deck, err := newSegmenter(cfg).LoadFile(*buildInput)
	if err != nil {
		return err
	}
	base := firstNonEmpty(*buildBaseURL, deck.Meta.BaseURL, cfg.Export.BaseURL)
	slides, err := export.PrepareSlides(deck.Slides, base)
	if err != nil {
		return err
	}
	data, err := slide.MarshalSlides(slides)
	if err != nil {
		return err
	}

	w, err := outputWriter(*buildOutput)
	if err != nil {
		return err
	}
	defer w.Close()
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	if *buildOutput != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d slides to %s\n", len(slides), *buildOutput)
	}
	return nil
}

// runExport writes a standalone player for a deck.
func runExport(cfg *config.Config) error {
	deck, err := loadDeck(cfg, *exportInput)
	if err != nil {
		return err
	}

	opts := exportOptions(cfg).WithMeta(deck.Meta)
	if *exportBaseURL != "" {
		opts.BaseURL = *exportBaseURL
	}
	if *exportTitle != "" {
		opts.Title = *exportTitle
	}
	format := firstNonEmpty(*exportFormat, cfg.Export.Format)
	output := firstNonEmpty(*exportOutput, export.Filename(format))

	w, err := outputWriter(output)
	if err != nil {
		return err
	}
	if err := export.Write(w, deck, opts, format); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d slides to %s\n", deck.Len(), output)
	return nil
}

// runVoices lists the voices of the configured backend, preferred first.
func runVoices(cfg *config.Config) error {
	sp, err := newSpeaker(cfg)
	if err != nil {
		return err
	}
	if sp == nil {
		fmt.Println("No speech backend available; only manual mode can run.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Speech.VoiceLoadTimeout()+time.Second)
	defer cancel()
	voices, err := voice.Load(ctx, sp, cfg.Speech.VoiceLoadTimeout(), 0)
	if err != nil {
		return err
	}
	if len(voices) == 0 {
		fmt.Printf("Backend %s reported no voices; its default voice will be used.\n", sp.Name())
		return nil
	}

	pc := playbackConfig(cfg)
	selected, _ := voice.Select(voices, pc.PreferredVoices, pc.Voice)
	fmt.Printf("Backend: %s (%d voices)\n", sp.Name(), len(voices))
	for _, v := range voice.Ordered(voices, pc.PreferredVoices) {
		marker := " "
		if v.ID == selected.ID && v.Name == selected.Name {
			marker = "*"
		}
		fmt.Printf(" %s %-32s %s\n", marker, v.Name, v.Lang)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
