package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/blogsphare/sphare/persistent"
	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// testenv starts throwaway postgres and mongodb containers, exports their
// addresses and runs `go test` against them.
//
//	go run ./testenv [package]

func main() {
	flag.Parse()

	pool, err := dockertest.NewPool("")
	if err != nil {
		logrus.WithError(err).Fatalln("Could not connect to docker.")
	}
	pool.MaxWait = 30 * time.Second

	logrus.Println("Starting postgres container.")
	shutdownPg, err := startPostgres(pool)
	if err != nil {
		logrus.WithError(err).Fatalln("Could not create test postgres.")
	}

	logrus.Println("Starting mongodb container.")
	shutdownMongo, err := startMongo(pool)
	if err != nil {
		shutdownPg()
		logrus.WithError(err).Fatalln("Could not create test mongodb.")
	}

	path := "./..."
	if flag.NArg() > 0 {
		path = "./" + flag.Arg(0)
	}
	logrus.WithField("path", path).Println("Running tests...")
	ok := runTests(path)

	logrus.Println("Tests done. Shutting down test databases.")
	shutdownMongo()
	shutdownPg()
	if !ok {
		os.Exit(1)
	}
}

func runTests(path string) bool {
	c := exec.Command("go", "test", path)
	c.Env = os.Environ()
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		logrus.WithError(err).Errorln("Tests failed.")
		return false
	}
	return true
}

func runContainer(pool *dockertest.Pool, opts *dockertest.RunOptions) (*dockertest.Resource, func(), error) {
	resource, err := pool.RunWithOptions(opts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("resource start: %w", err)
	}
	_ = resource.Expire(300)
	purge := func() {
		if err := pool.Purge(resource); err != nil {
			logrus.WithError(err).Warningln("Could not purge resource.")
		}
	}
	return resource, purge, nil
}

func startPostgres(pool *dockertest.Pool) (func(), error) {
	passB := make([]byte, 30)
	if _, err := rand.Read(passB); err != nil {
		return nil, fmt.Errorf("password generate: %w", err)
	}
	pass := base32.StdEncoding.EncodeToString(passB)

	resource, purge, err := runContainer(pool, &dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "14.1",
		Env:        []string{"POSTGRES_PASSWORD=" + pass},
	})
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("postgresql://postgres:%s@localhost:%s/postgres?sslmode=disable",
		pass, resource.GetPort("5432/tcp"))
	err = pool.Retry(func() error {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		defer sqldb.Close()
		if err := sqldb.Ping(); err != nil {
			return fmt.Errorf("sqldb ping: %w", err)
		}
		bdb := bun.NewDB(sqldb, pgdialect.New())
		return persistent.CreatePgSchema(context.Background(), bdb)
	})
	if err != nil {
		purge()
		return nil, fmt.Errorf("database connect: %w", err)
	}

	persistent.SetPgTestEnvDsn(dsn)
	return purge, nil
}

func startMongo(pool *dockertest.Pool) (func(), error) {
	// single node replica set, transactions need one
	resource, purge, err := runContainer(pool, &dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "6.0",
		Cmd:        []string{"--replSet", "rs0", "--bind_ip_all"},
	})
	if err != nil {
		return nil, err
	}

	port := resource.GetPort("27017/tcp")
	uri := fmt.Sprintf("mongodb://localhost:%s/?directConnection=true", port)
	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		defer client.Disconnect(ctx)
		if err := client.Ping(ctx, nil); err != nil {
			return err
		}
		return initReplicaSet(ctx, client)
	})
	if err != nil {
		purge()
		return nil, fmt.Errorf("database connect: %w", err)
	}

	persistent.SetMongoTestEnvUri(uri)
	return purge, nil
}

func initReplicaSet(ctx context.Context, client *mongo.Client) error {
	admin := client.Database("admin")
	var status struct {
		Ok float64 `bson:"ok"`
	}
	err := admin.RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).Decode(&status)
	if err == nil && status.Ok == 1 {
		return nil
	}
	config := bson.M{
		"_id":     "rs0",
		"members": bson.A{bson.M{"_id": 0, "host": "localhost:27017"}},
	}
	return admin.RunCommand(ctx, bson.D{{Key: "replSetInitiate", Value: config}}).Err()
}
