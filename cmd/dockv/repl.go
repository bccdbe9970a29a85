package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/DocKV/dockv/pkg/cell"
	"github.com/DocKV/dockv/pkg/dump"
	"github.com/DocKV/dockv/pkg/keycodec"
	"github.com/DocKV/dockv/pkg/scan"
	"github.com/DocKV/dockv/pkg/schema"
	"github.com/DocKV/dockv/pkg/store"
	"github.com/DocKV/dockv/pkg/txn"
)

// runInteractive starts the interactive shell.
func runInteractive(sess *session) {
	fmt.Println("DocKV (dockv) version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".dockv_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dockv> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	ctx := context.Background()

	for {
		if sess.curTxn != nil {
			rl.SetPrompt(fmt.Sprintf("dockv[%s]> ", sess.curTxn))
		} else {
			rl.SetPrompt("dockv> ")
		}

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		if strings.HasPrefix(cmd, ".") {
			runDotCommand(sess, strings.ToLower(cmd), parts)
			if strings.ToLower(cmd) == ".exit" {
				return
			}
			continue
		}

		runCommand(ctx, sess, cmd, parts)
	}
}

func runDotCommand(sess *session, cmd string, parts []string) {
	switch cmd {
	case ".help":
		fmt.Print(helpText)

	case ".exit":
		if sess.curTxn != nil {
			sess.abortTxn()
			fmt.Println("Open transaction aborted")
		}
		fmt.Println("Goodbye!")

	case ".schema":
		printSchema(sess.sch)

	case ".stats":
		fmt.Printf("Entries: %d\n", sess.st.Len())
		fmt.Printf("Approximate size: %d bytes\n", sess.st.ApproximateSize())
		fmt.Printf("Clock: %d us\n", sess.clock)
		if sess.curTxn != nil {
			fmt.Printf("Open transaction: %s (write time %s)\n", sess.curTxn, sess.txnTime)
		}

	case ".clock":
		fmt.Printf("%d us\n", sess.clock)

	case ".save":
		if len(parts) < 2 {
			fmt.Println("Error: .save requires a path argument")
			return
		}
		if err := saveSegment(sess, parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving segment: %s\n", err)
		}

	case ".load":
		if len(parts) < 2 {
			fmt.Println("Error: .load requires a path argument")
			return
		}
		if err := loadSegment(sess, parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading segment: %s\n", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n", cmd)
	}
}

func runCommand(ctx context.Context, sess *session, cmd string, parts []string) {
	var err error

	switch cmd {
	case "SCHEMA":
		if sess.curTxn != nil {
			fmt.Println("Error: Cannot redefine the schema inside a transaction")
			return
		}
		if len(parts) < 2 {
			fmt.Println("Error: SCHEMA requires column definitions, e.g. SCHEMA id:string:key name:string")
			return
		}
		if err = redefineSchema(sess, parts[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return
		}
		fmt.Println("Schema replaced, store reset")
		printSchema(sess.sch)

	case "BEGIN":
		lit := ""
		if len(parts) >= 2 {
			lit = parts[1]
		}
		id, beginErr := sess.beginTxn(lit)
		if beginErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", beginErr)
			return
		}
		fmt.Printf("Started transaction %s at %s\n", id, sess.txnTime)

	case "COMMIT":
		at := sess.tick()
		if len(parts) == 3 && strings.ToUpper(parts[1]) == "AT" {
			us, parseErr := strconv.ParseUint(parts[2], 10, 64)
			if parseErr != nil {
				fmt.Fprintf(os.Stderr, "Error: bad commit time %q\n", parts[2])
				return
			}
			at = keycodec.FromMicros(us)
		}
		if err = sess.commitTxn(at); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return
		}
		fmt.Printf("Transaction committed at %s\n", at)

	case "ABORT":
		if err = sess.abortTxn(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			return
		}
		fmt.Println("Transaction aborted")

	case "PUT":
		if len(parts) < 4 {
			fmt.Println("Error: PUT requires key, column and value arguments")
			return
		}
		if err = doPut(sess, parts[1], parts[2], parts[3:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}

	case "DEL":
		if len(parts) < 3 {
			fmt.Println("Error: DEL requires key and column arguments")
			return
		}
		if err = doDeleteColumn(sess, parts[1], parts[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}

	case "DELROW":
		if len(parts) < 2 {
			fmt.Println("Error: DELROW requires a key argument")
			return
		}
		if err = doDeleteDocument(sess, parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}

	case "GET":
		if len(parts) < 2 {
			fmt.Println("Error: GET requires a key argument")
			return
		}
		if err = doGet(ctx, sess, parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}

	case "SCAN":
		if err = doScan(ctx, sess, parts[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}

	case "DUMP":
		out, dumpErr := dump.Dump(sess.st)
		if dumpErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", dumpErr)
			return
		}
		fmt.Print(out)

	default:
		fmt.Printf("Unknown command: %s\n", cmd)
	}
}

func printSchema(sch *schema.Schema) {
	for i, col := range sch.Columns() {
		role := ""
		if i < sch.NumKeyColumns() {
			role = " (key)"
		}
		typeName := "string"
		if col.Type == schema.TypeInt64 {
			typeName = "int64"
		}
		fmt.Printf("  %s: %s, id %d%s\n", col.Name, typeName, col.ID, role)
	}
}

// redefineSchema parses "name:type[:key]" definitions. Key columns must
// come first. Column ids are assigned 10, 20, 30...
func redefineSchema(sess *session, defs []string) error {
	cols := make([]schema.ColumnSchema, 0, len(defs))
	numKey := 0
	for i, def := range defs {
		fields := strings.Split(def, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return fmt.Errorf("bad column definition %q, want name:type[:key]", def)
		}

		var typ schema.ColumnType
		switch fields[1] {
		case "string":
			typ = schema.TypeString
		case "int64":
			typ = schema.TypeInt64
		default:
			return fmt.Errorf("unknown column type %q", fields[1])
		}

		if len(fields) == 3 {
			if fields[2] != "key" {
				return fmt.Errorf("bad column modifier %q, only :key is supported", fields[2])
			}
			if i != numKey {
				return fmt.Errorf("key columns must come before value columns")
			}
			numKey++
		}

		cols = append(cols, schema.ColumnSchema{
			Name: fields[0],
			ID:   keycodec.ColumnID((i + 1) * 10),
			Type: typ,
		})
	}

	sch, err := schema.New(cols, numKey)
	if err != nil {
		return err
	}

	sess.sch = sch
	sess.st = store.NewMemStore()
	return nil
}

// doPut writes one cell. The value tokens may end with "TTL <duration>".
func doPut(sess *session, keyLit, colName string, valueParts []string) error {
	dk, err := sess.parseKey(keyLit)
	if err != nil {
		return err
	}
	col, err := sess.columnByName(colName)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if len(valueParts) >= 3 && strings.ToUpper(valueParts[len(valueParts)-2]) == "TTL" {
		ttl, err = time.ParseDuration(valueParts[len(valueParts)-1])
		if err != nil {
			return fmt.Errorf("bad TTL %q: %w", valueParts[len(valueParts)-1], err)
		}
		valueParts = valueParts[:len(valueParts)-2]
	}
	raw := strings.Join(valueParts, " ")

	var val cell.Value
	switch col.Type {
	case schema.TypeString:
		val = cell.String(raw)
	case schema.TypeInt64:
		n, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return fmt.Errorf("column %s holds int64 values: %w", col.Name, parseErr)
		}
		val = cell.Int64(n)
	default:
		return fmt.Errorf("unsupported column type for %s", col.Name)
	}
	if ttl != 0 {
		val = val.WithTTL(ttl)
	}

	if err := sess.applyBatch(store.NewBatch().SetCell(dk, col.ID, val)); err != nil {
		return err
	}
	if sess.curTxn != nil {
		fmt.Println("Cell written as intent (visible after commit)")
	} else {
		fmt.Println("Cell written")
	}
	return nil
}

func doDeleteColumn(sess *session, keyLit, colName string) error {
	dk, err := sess.parseKey(keyLit)
	if err != nil {
		return err
	}
	col, err := sess.columnByName(colName)
	if err != nil {
		return err
	}

	if err := sess.applyBatch(store.NewBatch().DeleteColumn(dk, col.ID)); err != nil {
		return err
	}
	fmt.Println("Column deleted")
	return nil
}

func doDeleteDocument(sess *session, keyLit string) error {
	dk, err := sess.parseKey(keyLit)
	if err != nil {
		return err
	}

	if err := sess.applyBatch(store.NewBatch().DeleteDocument(dk)); err != nil {
		return err
	}
	fmt.Println("Document deleted")
	return nil
}

// doGet reads one document at the current clock.
func doGet(ctx context.Context, sess *session, keyLit string) error {
	dk, err := sess.parseKey(keyLit)
	if err != nil {
		return err
	}

	ri, err := sess.newScan(sess.now(), &dk)
	if err != nil {
		return err
	}
	if err := ri.Init(ctx); err != nil {
		return err
	}

	var row scan.Row
	err = ri.NextRow(ctx, &row)
	if errors.Is(err, scan.ErrExhausted) {
		fmt.Println("Document not found")
		return nil
	}
	if err != nil {
		return err
	}

	if !rowMatchesKey(sess.sch, &row, dk) {
		fmt.Println("Document not found")
		return nil
	}
	fmt.Println(row.String())
	return nil
}

// rowMatchesKey reports whether the row's key columns equal dk.
func rowMatchesKey(sch *schema.Schema, row *scan.Row, dk keycodec.DocKey) bool {
	for i := 0; i < sch.NumKeyColumns(); i++ {
		col := sch.Columns()[i]
		val, ok := row.Value(col.ID)
		if !ok {
			return false
		}
		comp := dk.Components[i]
		switch comp.Kind {
		case keycodec.ComponentString:
			if val.Kind != cell.KindString || val.Str != comp.Str {
				return false
			}
		case keycodec.ComponentInt64:
			if val.Kind != cell.KindInt64 || val.Int != comp.Int {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// doScan runs a full scan, honoring optional AT and FROM clauses.
func doScan(ctx context.Context, sess *session, args []string) error {
	ceiling := sess.now()
	var startKey *keycodec.DocKey

	for i := 0; i < len(args); {
		switch strings.ToUpper(args[i]) {
		case "AT":
			if i+1 >= len(args) {
				return fmt.Errorf("AT requires a time in microseconds")
			}
			us, err := strconv.ParseUint(args[i+1], 10, 64)
			if err != nil {
				return fmt.Errorf("bad read time %q: %w", args[i+1], err)
			}
			ceiling = keycodec.FromMicros(us)
			i += 2
		case "FROM":
			if i+1 >= len(args) {
				return fmt.Errorf("FROM requires a key")
			}
			dk, err := sess.parseKey(args[i+1])
			if err != nil {
				return err
			}
			startKey = &dk
			i += 2
		default:
			return fmt.Errorf("invalid SCAN syntax, see .help for usage")
		}
	}

	ri, err := sess.newScan(ceiling, startKey)
	if err != nil {
		return err
	}
	if err := ri.Init(ctx); err != nil {
		return err
	}

	count := 0
	for {
		ok, err := ri.HasNext(ctx)
		if err != nil {
			if errors.Is(err, txn.ErrStatusUnknown) {
				return fmt.Errorf("transaction status unknown, retry the scan: %w", err)
			}
			return err
		}
		if !ok {
			break
		}

		var row scan.Row
		if err := ri.NextRow(ctx, &row); err != nil {
			return err
		}
		fmt.Println(row.String())
		count++
	}
	fmt.Printf("%d documents found\n", count)
	return nil
}

func saveSegment(sess *session, path string) error {
	comp, err := sess.cfg.Compression()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := store.WriteSegment(f, sess.st, comp)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	fmt.Printf("Wrote %d entries (%s) to %s\n", n, comp, path)
	return nil
}

func loadSegment(sess *session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := store.OpenSegment(f)
	if err != nil {
		return err
	}

	sess.st = st
	fmt.Printf("Loaded %d entries from %s\n", st.Len(), path)
	return nil
}
