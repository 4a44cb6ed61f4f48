package gdb

import (
	"reflect"
	"testing"
)

func TestBuildArgsDefaults(t *testing.T) {
	args, err := SpawnOptions{}.buildArgs()
	if err != nil {
		t.Fatalf("buildArgs: %v", err)
	}
	want := []string{"--interpreter=mi"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("expected %v, got %v", want, args)
	}
}

func TestBuildArgsAllFlags(t *testing.T) {
	opts := SpawnOptions{
		Program:     "/bin/app",
		NH:          true,
		NX:          true,
		Quiet:       true,
		CD:          "/work",
		BPS:         115200,
		SymbolFile:  "/work/app.sym",
		CoreFile:    "/work/core",
		ProcID:      4242,
		CommandFile: "/work/init.gdb",
		SourceDir:   "/work/src",
		TTY:         "/dev/pts/3",
	}
	args, err := opts.buildArgs()
	if err != nil {
		t.Fatalf("buildArgs: %v", err)
	}
	want := []string{
		"--interpreter=mi",
		"--nh",
		"--nx",
		"--quiet",
		"--cd=/work",
		"-b", "115200",
		"--symbols=/work/app.sym",
		"--core=/work/core",
		"--pid=4242",
		"--command=/work/init.gdb",
		"--directory=/work/src",
		"--tty=/dev/pts/3",
		"/bin/app",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("expected %v, got %v", want, args)
	}
}

func TestBuildArgsInferiorArguments(t *testing.T) {
	opts := SpawnOptions{
		Program: "/bin/app",
		Args:    []string{"-v", "input.txt"},
	}
	args, err := opts.buildArgs()
	if err != nil {
		t.Fatalf("buildArgs: %v", err)
	}
	want := []string{"--interpreter=mi", "--args", "/bin/app", "-v", "input.txt"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("expected %v, got %v", want, args)
	}
}

func TestBuildArgsRequireProgramWithArgs(t *testing.T) {
	_, err := SpawnOptions{Args: []string{"-v"}}.buildArgs()
	if err == nil {
		t.Fatal("expected an error when args are given without a program")
	}
}
