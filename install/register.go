package install

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-crm-install/core"
	"github.com/goliatone/go-crm-install/queue"
)

// ContactCreator is implemented by the contacts handler; declared here so
// task registration does not depend on that package.
type ContactCreator interface {
	HandleContactCreate(ctx context.Context, contactID string, locationID string) (core.Contact, error)
}

// RegisterTasks binds every background task to its handler. The credential
// exchange task backs await-style callers such as the refresh sweep.
func RegisterTasks(
	runner *queue.Runner,
	orchestrator *Orchestrator,
	contacts ContactCreator,
	exchanger core.CredentialExchanger,
) error {
	if runner == nil {
		return fmt.Errorf("install: queue runner is required")
	}
	if orchestrator == nil {
		return fmt.Errorf("install: orchestrator is required")
	}

	if err := runner.RegisterTask(TaskHandleInstall, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		code := readParam(params, ParamCode)
		if code == "" {
			return nil, core.BadGrantError("install: code parameter is required")
		}
		company, err := orchestrator.InstallCompany(ctx, code, readParam(params, ParamRedirectURI))
		if err != nil {
			return nil, err
		}
		return map[string]any{ParamCompanyID: company.CompanyID}, nil
	}); err != nil {
		return err
	}

	if err := runner.RegisterTask(TaskInstallLocation, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		location, err := orchestrator.InstallFromWebhook(
			ctx,
			readParam(params, ParamCompanyID),
			readParam(params, ParamLocationID),
		)
		if err != nil {
			return nil, err
		}
		return map[string]any{ParamLocationID: location.LocationID}, nil
	}); err != nil {
		return err
	}

	if contacts != nil {
		if err := runner.RegisterTask(TaskContactCreate, func(ctx context.Context, params map[string]any) (map[string]any, error) {
			contact, err := contacts.HandleContactCreate(
				ctx,
				readParam(params, ParamContactID),
				readParam(params, ParamLocationID),
			)
			if err != nil {
				return nil, err
			}
			return map[string]any{ParamContactID: contact.ContactID}, nil
		}); err != nil {
			return err
		}
	}

	if exchanger != nil {
		if err := runner.RegisterTask(TaskExchangeCredential, func(ctx context.Context, params map[string]any) (map[string]any, error) {
			grant, err := grantFromParams(params)
			if err != nil {
				return nil, err
			}
			credential, err := exchanger.Exchange(ctx, grant)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"access_token":  credential.AccessToken,
				"refresh_token": credential.RefreshToken,
				"expires_at":    credential.ExpiresAt,
				"subject_id":    credential.SubjectID,
			}, nil
		}); err != nil {
			return err
		}
	}

	return nil
}

func grantFromParams(params map[string]any) (core.Grant, error) {
	subjectType := core.SubjectType(readParam(params, ParamSubjectType))
	switch readParam(params, ParamGrantType) {
	case core.GrantTypeAuthorizationCode:
		return core.AuthorizationCodeGrant{
			Code:        readParam(params, ParamCode),
			RedirectURI: readParam(params, ParamRedirectURI),
			SubjectType: subjectType,
		}, nil
	case core.GrantTypeRefreshToken:
		return core.RefreshTokenGrant{
			RefreshToken: readParam(params, ParamRefreshToken),
			SubjectType:  subjectType,
		}, nil
	default:
		return nil, core.BadGrantError("install: unsupported grant_type parameter")
	}
}

func readParam(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
