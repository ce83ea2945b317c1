package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/storage/ledgerdb"
)

func (cli *commandLine) addCourse(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading course file")
	}

	var crs course.Course
	if err = json.Unmarshal(raw, &crs); err != nil {
		return errors.Wrap(err, "parsing course file")
	}
	if crs.ID == "" {
		return errors.New("course file is missing an \"id\"")
	}

	if err = ledgerdb.PutCourse(ctx, cli.store, crs); err != nil {
		return errors.Wrap(err, "saving course")
	}
	fmt.Printf("course %q saved (%d lesson(s), %d exam(s))\n", crs.ID, len(crs.Lessons), len(crs.Exams))
	return nil
}
