// Command provision seeds a local database with a tenant catalog: a
// system, and optionally an organisation, a template and a provider under
// it. Intended for development and demo environments; production catalogs
// are managed out of band.
//
// Usage:
//
//	go run ./scripts/provision \
//	  -system billing -callback-type queue \
//	  -template invoice_ready -template-type email \
//	  -subject "Invoice {{invoice_number}}" -body-file invoice.html \
//	  -provider billing-ses -class ses_email -provider-type email \
//	  -config '{"region":"eu-west-1","from_email":"billing@example.com"}' \
//	  -priority 1
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/signalhouse/notify/internal/config"
	"github.com/signalhouse/notify/internal/models"
	"github.com/signalhouse/notify/internal/providers"
	"github.com/signalhouse/notify/internal/repository"
)

func main() {
	var (
		systemName   = flag.String("system", "", "system (tenant) name, required")
		description  = flag.String("description", "", "system description")
		callbackType = flag.String("callback-type", models.CallbackWebhook, "callback channel: webhook or queue")
		webhookURL   = flag.String("webhook-url", "", "webhook callback URL")
		webhookToken = flag.String("webhook-token", "", "bearer token sent with webhook callbacks")
		queueName    = flag.String("queue-name", "", "callback queue name override, defaults to <system>_queue")
		fromEmail    = flag.String("from-email", "", "default From address for email notifications")

		orgName = flag.String("organisation", "", "organisation to create under the system")

		templateName = flag.String("template", "", "template name to create")
		templateType = flag.String("template-type", models.TypeEmail, "template notification type: email, sms or push")
		subject      = flag.String("subject", "", "template subject, email only")
		body         = flag.String("body", "", "template body with {{placeholder}} variables")
		bodyFile     = flag.String("body-file", "", "read the template body from a file instead of -body")

		providerName = flag.String("provider", "", "provider name to create")
		className    = flag.String("class", "", "provider adapter class, one of: "+strings.Join(providers.ClassNames(), ", "))
		providerType = flag.String("provider-type", models.TypeSMS, "provider notification type: email, sms or push")
		configJSON   = flag.String("config", "{}", "provider config as a JSON object")
		priority     = flag.Int("priority", 1, "provider priority, lower dispatches first")
	)
	flag.Parse()

	if *systemName == "" {
		flag.Usage()
		log.Fatal("-system is required")
	}
	if *callbackType != models.CallbackWebhook && *callbackType != models.CallbackQueue {
		log.Fatalf("Invalid -callback-type %q: must be webhook or queue", *callbackType)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Migrate and seed so the tool works against an empty database.
	if err := migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	if err := repository.Seed(db); err != nil {
		log.Fatalf("Failed to seed reference data: %v", err)
	}

	ctx := context.Background()
	store := repository.NewStore(db)

	system := models.System{
		Name:             *systemName,
		Description:      *description,
		DefaultFromEmail: *fromEmail,
		CallbackType:     *callbackType,
		WebhookURL:       *webhookURL,
		WebhookAuthToken: *webhookToken,
		QueueName:        *queueName,
	}
	created, err := firstOrCreate(db, &system, "name = ?", *systemName)
	if err != nil {
		log.Fatalf("Failed to create system: %v", err)
	}
	logUpsert("system", system.Name, system.ID.String(), created)

	if *orgName != "" {
		org := models.Organisation{Name: *orgName, SystemID: system.ID}
		created, err := firstOrCreate(db, &org, "name = ? AND system_id = ?", *orgName, system.ID)
		if err != nil {
			log.Fatalf("Failed to create organisation: %v", err)
		}
		logUpsert("organisation", org.Name, org.ID.String(), created)
	}

	if *templateName != "" {
		templateBody := *body
		if *bodyFile != "" {
			raw, err := os.ReadFile(*bodyFile)
			if err != nil {
				log.Fatalf("Failed to read -body-file: %v", err)
			}
			templateBody = string(raw)
		}
		if templateBody == "" {
			log.Fatal("-template requires -body or -body-file")
		}

		notifType, err := store.Types.GetByName(ctx, *templateType)
		if err != nil {
			log.Fatalf("Unknown -template-type %q: %v", *templateType, err)
		}
		template := models.Template{
			Name:               *templateName,
			NotificationTypeID: notifType.ID,
			Subject:            *subject,
			Body:               templateBody,
			IsActive:           true,
		}
		created, err := firstOrCreate(db, &template, "name = ?", *templateName)
		if err != nil {
			log.Fatalf("Failed to create template: %v", err)
		}
		logUpsert("template", template.Name, template.ID.String(), created)
	}

	if *providerName != "" {
		if !validClass(*className) {
			log.Fatalf("Invalid -class %q: must be one of %s", *className, strings.Join(providers.ClassNames(), ", "))
		}
		if !json.Valid([]byte(*configJSON)) {
			log.Fatal("-config must be a valid JSON object")
		}

		notifType, err := store.Types.GetByName(ctx, *providerType)
		if err != nil {
			log.Fatalf("Unknown -provider-type %q: %v", *providerType, err)
		}
		provider := models.Provider{
			Name:               *providerName,
			NotificationTypeID: notifType.ID,
			Config:             datatypes.JSON(*configJSON),
			Priority:           priority,
			IsActive:           true,
			ClassName:          *className,
		}
		created, err := firstOrCreate(db, &provider, "name = ?", *providerName)
		if err != nil {
			log.Fatalf("Failed to create provider: %v", err)
		}
		logUpsert("provider", provider.Name, provider.ID.String(), created)
	}

	log.Println("Provisioning complete")
}

// firstOrCreate inserts dest unless a row matches the condition. Reports
// whether a new row was created.
func firstOrCreate(db *gorm.DB, dest interface{}, query string, args ...interface{}) (bool, error) {
	res := db.Where(query, args...).FirstOrCreate(dest)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func logUpsert(kind, name, id string, created bool) {
	if created {
		log.Printf("Created %s %q (id %s)", kind, name, id)
	} else {
		log.Printf("Found existing %s %q (id %s), left unchanged", kind, name, id)
	}
}

func validClass(name string) bool {
	for _, c := range providers.ClassNames() {
		if c == name {
			return true
		}
	}
	return false
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	modelsToMigrate := []interface{}{
		&models.State{},
		&models.NotificationType{},
		&models.Organisation{},
		&models.System{},
		&models.Template{},
		&models.Provider{},
		&models.Notification{},
	}
	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}
