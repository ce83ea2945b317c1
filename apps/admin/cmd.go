package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/trezcool/darasa/core/ledger"
	"github.com/trezcool/darasa/storage/docstore"
	"github.com/trezcool/darasa/storage/docstore/pgstore"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	store docstore.Store
	pg    *pgstore.Store // nil unless the postgres engine is configured
	svc   *ledger.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate [up|down|redo]                    - run database migrations (postgres engine only)")
	fmt.Println("  repair -student STUDENT -course COURSE    - repair a student's ledger for a course")
	fmt.Println("  addcourse -file PATH                      - load or replace a course definition from a JSON file")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	repairCmd := flag.NewFlagSet("repair", flag.ExitOnError)
	repairStudent := repairCmd.String("student", "", "The student's ID.")
	repairCourse := repairCmd.String("course", "", "The course's ID.")

	addCourseCmd := flag.NewFlagSet("addcourse", flag.ExitOnError)
	addCoursePath := addCourseCmd.String("file", "", "Path to the course definition JSON file.")

	switch args[1] {
	case "migrate":
		return cli.migrate(args[2:])
	case "repair":
		if err := repairCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *repairStudent == "" || *repairCourse == "" {
			repairCmd.Usage()
			return errHelp
		}
		return cli.repair(context.Background(), *repairStudent, *repairCourse)
	case "addcourse":
		if err := addCourseCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addCoursePath == "" {
			addCourseCmd.Usage()
			return errHelp
		}
		return cli.addCourse(context.Background(), *addCoursePath)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) repair(ctx context.Context, studentID, courseID string) error {
	res, err := cli.svc.Repair(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	fmt.Printf(
		"repair done: %d duplicate(s) removed, %d orphan(s) removed, aggregate rebuilt: %t\n",
		res.DuplicatesRemoved, res.OrphansRemoved, res.AggregateRebuilt,
	)
	return nil
}
