package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"surveyflow/internal/client"
	"surveyflow/internal/output"
	"surveyflow/internal/survey"
)

// RunGoldenList lists the golden example library.
func RunGoldenList() {
	api := newAPIClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	golden, err := api.ListGolden(ctx)
	if err != nil {
		output.PrintError(err)
		return
	}

	output.Print(golden, func() {
		if len(golden) == 0 {
			fmt.Println("No golden examples")
			return
		}
		for _, g := range golden {
			industry := g.Industry
			if industry == "" {
				industry = "-"
			}
			fmt.Printf("%-36s  %-20s  %s\n", g.ID, industry, g.Title)
		}
	})
}

// RunGoldenShow displays one golden example as YAML.
func RunGoldenShow(id string) {
	api := newAPIClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	golden, err := api.ListGolden(ctx)
	if err != nil {
		output.PrintError(err)
		return
	}
	for _, g := range golden {
		if g.ID == id {
			output.Print(g, func() {
				data, _ := yaml.Marshal(g)
				fmt.Print(string(data))
			})
			return
		}
	}
	output.PrintError(fmt.Errorf("golden example %s not found", id))
}

// RunGoldenAdd uploads a golden example from a YAML file.
func RunGoldenAdd(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		output.PrintError(fmt.Errorf("read golden file: %w", err))
		return
	}
	var g survey.GoldenExample
	if err := yaml.Unmarshal(data, &g); err != nil {
		output.PrintError(fmt.Errorf("parse golden file: %w", err))
		return
	}

	api := newAPIClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	saved, err := api.AddGolden(ctx, g)
	if err != nil {
		output.PrintError(err)
		return
	}

	output.Print(saved, func() {
		fmt.Printf("Golden example %s added: %s\n", saved.ID, saved.Title)
	})
}

// RunGoldenRemove deletes a golden example by ID.
func RunGoldenRemove(id string) {
	api := newAPIClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := api.RemoveGolden(ctx, id); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			output.PrintError(fmt.Errorf("golden example %s not found", id))
			return
		}
		output.PrintError(err)
		return
	}

	output.Print(map[string]string{"removed": id}, func() {
		fmt.Printf("Golden example %s removed\n", id)
	})
}
