package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/groups"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
)

const (
	odataTypeUser  = "#microsoft.graph.user"
	odataTypeGroup = "#microsoft.graph.group"

	defaultScope = "https://graph.microsoft.com/.default"
)

var (
	userFields  = []string{"id", "displayName", "givenName", "surname", "mail", "userPrincipalName"}
	groupFields = []string{"id", "displayName", "mail"}
)

// Client es la parte de Microsoft Graph que usa el provider. Los objetos
// retornados conservan su @odata.type.
type Client interface {
	ListUsers(ctx context.Context, filter string, top int32) ([]models.DirectoryObjectable, error)
	ListGroups(ctx context.Context, filter string, top int32) ([]models.DirectoryObjectable, error)
	// GetDirectoryObject retorna (nil, nil) si el objeto no existe.
	GetDirectoryObject(ctx context.Context, id string) (models.DirectoryObjectable, error)
}

type sdkClient struct {
	gs *msgraphsdk.GraphServiceClient
}

// NewClient crea un Client con credenciales de aplicación (client secret).
func NewClient(cfg Config) (Client, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("graph credential: %w", err)
	}
	gs, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{defaultScope})
	if err != nil {
		return nil, fmt.Errorf("graph client: %w", err)
	}
	return &sdkClient{gs: gs}, nil
}

func (c *sdkClient) ListUsers(ctx context.Context, filter string, top int32) ([]models.DirectoryObjectable, error) {
	resp, err := c.gs.Users().Get(ctx, &users.UsersRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.UsersRequestBuilderGetQueryParameters{
			Filter: &filter,
			Select: userFields,
			Top:    &top,
		},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.DirectoryObjectable, 0, len(resp.GetValue()))
	for _, u := range resp.GetValue() {
		out = append(out, u)
	}
	return out, nil
}

func (c *sdkClient) ListGroups(ctx context.Context, filter string, top int32) ([]models.DirectoryObjectable, error) {
	resp, err := c.gs.Groups().Get(ctx, &groups.GroupsRequestBuilderGetRequestConfiguration{
		QueryParameters: &groups.GroupsRequestBuilderGetQueryParameters{
			Filter: &filter,
			Select: groupFields,
			Top:    &top,
		},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.DirectoryObjectable, 0, len(resp.GetValue()))
	for _, g := range resp.GetValue() {
		out = append(out, g)
	}
	return out, nil
}

func (c *sdkClient) GetDirectoryObject(ctx context.Context, id string) (models.DirectoryObjectable, error) {
	obj, err := c.gs.DirectoryObjects().ByDirectoryObjectId(id).Get(ctx, nil)
	if isNotFound(err) {
		return nil, nil
	}
	return obj, err
}

// isNotFound reconoce el 404 de Graph, por status o por código OData.
func isNotFound(err error) bool {
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return false
	}
	if odataErr.ResponseStatusCode == 404 {
		return true
	}
	if me := odataErr.GetErrorEscaped(); me != nil && me.GetCode() != nil {
		return *me.GetCode() == "Request_ResourceNotFound"
	}
	return false
}
