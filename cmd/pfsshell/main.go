// Command pfsshell is an interactive shell over a single heap-file table,
// useful for poking at the record manager and its buffer pool by hand.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/pagestore/internal"
	"github.com/tuannm99/pagestore/internal/record"
)

func usage() {
	fmt.Println(`commands:
  create                                       create the table (demo.tbl, or the -config path) with schema id:INT name:STRING[16] age:INT
  insert <id> <name> <age>                     insert a row
  get <page> <slot>                            fetch a row by rid
  delete <page> <slot>                         delete a row by rid
  scan                                         print every live row
  count                                        print the tuple count
  help
  exit`)
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (pagefile/bufferpool/server sections)")
	flag.Parse()

	sh := &shell{path: "demo.tbl", pool: record.PoolConfig{Policy: record.DefaultPolicy}}
	if *configPath != "" {
		cfg, err := internal.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if cfg.PageFile.Path != "" {
			sh.path = cfg.PageFile.Path
		}
		policy, strategy, err := cfg.ResolvePolicy()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		sh.pool = record.PoolConfig{NumFrames: cfg.BufferPool.NumFrames, Policy: policy, Strategy: strategy}
		fmt.Printf("loaded config %s: pagefile=%s pool=%d frames, policy=%s\n", *configPath, sh.path, cfg.BufferPool.NumFrames, policy)
	}

	rl, err := readline.New("pfsshell> ")
	if err != nil {
		log.Fatalf("readline: %v", err)
	}
	defer rl.Close()

	fmt.Println("pfsshell — type 'help' for commands")

	for {
		line, err := rl.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			break
		}
		if err != nil {
			log.Fatalf("readline: %v", err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if err := sh.dispatch(fields[0], fields[1:]); err != nil {
			fmt.Println("error:", err)
		}
	}

	if sh.tbl != nil {
		if err := sh.tbl.CloseTable(); err != nil {
			fmt.Println("error closing table:", err)
		}
	}
}

type shell struct {
	path string
	pool record.PoolConfig
	tbl  *record.Table
}

func (s *shell) schema() record.Schema {
	return record.Schema{
		Attrs: []record.Attribute{
			{Name: "id", Type: record.TypeInt},
			{Name: "name", Type: record.TypeString, Length: 16},
			{Name: "age", Type: record.TypeInt},
		},
		KeyAttrs: []int{0},
	}
}

func (s *shell) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help":
		usage()
		return nil
	case "exit":
		os.Exit(0)
		return nil
	case "create":
		return s.create()
	case "insert":
		return s.insert(args)
	case "get":
		return s.get(args)
	case "delete":
		return s.del(args)
	case "scan":
		return s.scan()
	case "count":
		return s.count()
	default:
		return fmt.Errorf("unknown command %q; type 'help'", cmd)
	}
}

func (s *shell) ensureOpen() error {
	if s.tbl != nil {
		return nil
	}
	tbl, err := record.OpenTableWithPool(s.path, s.pool)
	if err != nil {
		return fmt.Errorf("table not open; run 'create' first: %w", err)
	}
	s.tbl = tbl
	return nil
}

func (s *shell) create() error {
	if err := record.CreateTableWithPool(s.path, s.schema(), s.pool); err != nil {
		return err
	}
	tbl, err := record.OpenTableWithPool(s.path, s.pool)
	if err != nil {
		return err
	}
	s.tbl = tbl
	fmt.Println("created", s.path)
	return nil
}

func (s *shell) insert(args []string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if len(args) != 3 {
		return fmt.Errorf("usage: insert <id> <name> <age>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	age, err := strconv.Atoi(args[2])
	if err != nil {
		return err
	}

	schema := s.schema()
	rec := record.NewRecord(schema)
	if err := record.SetAttr(rec, schema, 0, record.Value{Type: record.TypeInt, Int: int32(id)}); err != nil {
		return err
	}
	if err := record.SetAttr(rec, schema, 1, record.Value{Type: record.TypeString, Str: args[1]}); err != nil {
		return err
	}
	if err := record.SetAttr(rec, schema, 2, record.Value{Type: record.TypeInt, Int: int32(age)}); err != nil {
		return err
	}

	if err := s.tbl.InsertRecord(rec); err != nil {
		return err
	}
	fmt.Printf("inserted at page=%d slot=%d\n", rec.ID.Page, rec.ID.Slot)
	return nil
}

func parseRID(args []string) (record.RecordID, error) {
	if len(args) != 2 {
		return record.RecordID{}, fmt.Errorf("usage: <page> <slot>")
	}
	page, err := strconv.Atoi(args[0])
	if err != nil {
		return record.RecordID{}, err
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return record.RecordID{}, err
	}
	return record.RecordID{Page: page, Slot: slot}, nil
}

func printRow(rec *record.Record, schema record.Schema) error {
	id, err := record.GetAttr(rec, schema, 0)
	if err != nil {
		return err
	}
	name, err := record.GetAttr(rec, schema, 1)
	if err != nil {
		return err
	}
	age, err := record.GetAttr(rec, schema, 2)
	if err != nil {
		return err
	}
	fmt.Printf("id=%d name=%q age=%d (page=%d slot=%d)\n", id.Int, name.Str, age.Int, rec.ID.Page, rec.ID.Slot)
	return nil
}

func (s *shell) get(args []string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	rid, err := parseRID(args)
	if err != nil {
		return err
	}
	rec, err := s.tbl.GetRecord(rid)
	if err != nil {
		return err
	}
	return printRow(rec, s.schema())
}

func (s *shell) del(args []string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	rid, err := parseRID(args)
	if err != nil {
		return err
	}
	if err := s.tbl.DeleteRecord(rid); err != nil {
		return err
	}
	fmt.Println("deleted")
	return nil
}

func (s *shell) scan() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	schema := s.schema()
	sc := s.tbl.StartScan(nil)
	defer sc.Close()

	n := 0
	for {
		rec, err := sc.Next()
		if err != nil {
			break
		}
		if err := printRow(rec, schema); err != nil {
			return err
		}
		n++
	}
	fmt.Printf("%d rows\n", n)
	return nil
}

func (s *shell) count() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	fmt.Println(s.tbl.GetNumTuples())
	return nil
}
