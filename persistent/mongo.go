package persistent

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	profileCollection  = "profiles"
	categoryCollection = "blog_categories"
)

func MongoOpen(ctx context.Context, uri string, database string) *mongo.Database {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		logrus.WithError(err).Fatalln("Could not connect to mongodb.")
	}
	if err := client.Ping(ctx, nil); err != nil {
		logrus.WithError(err).Fatalln("Could not ping mongodb.")
	}
	return client.Database(database)
}

func MongoClose(db *mongo.Database) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Client().Disconnect(ctx); err != nil {
		logrus.WithError(err).Warningln("Could not disconnect from mongodb.")
	}
}

// MongoOpenTest opens a fresh database on the instance started by testenv.
func MongoOpenTest(ctx context.Context) *mongo.Database {
	db := MongoOpen(ctx, MongoTestEnvUri(), "sphare_test")
	if err := db.Drop(ctx); err != nil {
		logrus.WithError(err).Fatalln("Could not drop test database.")
	}
	return db
}

func MongoTestEnvUri() string {
	return os.Getenv("MONGODB_TEST_URI")
}

func SetMongoTestEnvUri(uri string) {
	os.Setenv("MONGODB_TEST_URI", uri)
}
