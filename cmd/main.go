package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"caller-lookup-bot/handler"
	"caller-lookup-bot/internal/conversation"
	"caller-lookup-bot/internal/integrations/paramstore"
	"caller-lookup-bot/internal/integrations/truecaller"
	"caller-lookup-bot/internal/repository"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	sessionTable := mustEnv("SESSION_TABLE")
	secretParamName := os.Getenv("WEBHOOK_SECRET_PARAM") // empty disables validation

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	sessionStore, err := repository.New(awsdynamodb.NewFromConfig(cfg), sessionTable)
	if err != nil {
		slog.Error("failed to create session store", "err", err)
		os.Exit(1)
	}
	identityClient := truecaller.NewClient()

	// ---- Handler ----
	svc, err := conversation.NewService(sessionStore, identityClient)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}

	var opts []handler.Option
	if secretParamName != "" {
		ssmClient, psErr := paramstore.New(awsssm.NewFromConfig(cfg))
		if psErr != nil {
			slog.Error("failed to create SSM client", "err", psErr)
			os.Exit(1)
		}
		opts = append(opts, handler.WithWebhookSecret(ssmClient, secretParamName))
	}

	h, err := handler.NewHandler(svc, opts...)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
