package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsmgmtapi "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/kelseyhightower/envconfig"

	"chat-translator/handler"
	"chat-translator/internal/integrations/paramstore"
	"chat-translator/internal/integrations/push"
	"chat-translator/internal/integrations/translator"
	"chat-translator/internal/repository"
	"chat-translator/internal/usecase"
)

// Config carries everything read from the environment. Nothing else in
// the process touches os.Getenv.
type Config struct {
	MembersTable      string `envconfig:"MEMBERS_TABLE" required:"true"`
	ParamPrefix       string `envconfig:"PARAM_PREFIX" required:"true"`
	TranslatorBaseURL string `envconfig:"TRANSLATOR_BASE_URL" required:"true"`
	TranslatorRegion  string `envconfig:"TRANSLATOR_REGION" required:"true"`
	PushCallbackURL   string `envconfig:"PUSH_CALLBACK_URL" required:"true"`
}

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	var conf Config
	if err := envconfig.Process("", &conf); err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	directory, err := repository.New(awsdynamodb.NewFromConfig(cfg), conf.MembersTable)
	if err != nil {
		slog.Error("failed to create member directory", "err", err)
		os.Exit(1)
	}

	translatorClient, err := translator.NewClient(ssmClient, conf.ParamPrefix, conf.TranslatorBaseURL, conf.TranslatorRegion)
	if err != nil {
		slog.Error("failed to create translator client", "err", err)
		os.Exit(1)
	}

	mgmtClient := awsmgmtapi.NewFromConfig(cfg, func(o *awsmgmtapi.Options) {
		o.BaseEndpoint = aws.String(conf.PushCallbackURL)
	})
	notifier, err := push.New(mgmtClient)
	if err != nil {
		slog.Error("failed to create push notifier", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	chatService, err := usecase.NewChatService(directory, translatorClient, notifier, slog.Default())
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(chatService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
