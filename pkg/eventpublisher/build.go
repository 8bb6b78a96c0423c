package eventpublisher

import (
	"fmt"
	"strings"
	"time"

	cdeventsapi "github.com/cdevents/sdk-go/pkg/api"
	cdeventsv05 "github.com/cdevents/sdk-go/pkg/api/v05"
)

const defaultSource = "integrationgw"

// BuildEventBody renders event as a CDEvents JSON body and returns the
// resolved CDEvents type.
func BuildEventBody(event Event) ([]byte, string, error) {
	service := strings.TrimSpace(event.Service)
	environment := strings.TrimSpace(event.Environment)
	if service == "" || environment == "" {
		return nil, "", fmt.Errorf("service and environment are required for service events")
	}
	source := strings.TrimSpace(event.Source)
	if source == "" {
		source = defaultSource
	}
	if platform := strings.TrimSpace(event.Platform); platform != "" && !strings.Contains(source, "/") {
		source = source + "/" + platform
	}
	subjectID := service
	if !strings.Contains(subjectID, "/") {
		subjectID = "service/" + subjectID
	}
	artifact := strings.TrimSpace(event.Artifact)

	switch resolved := normalizeType(event.Type); resolved {
	case "service.deployed":
		if artifact == "" {
			artifact = fmt.Sprintf("pkg:generic/%s@%d", service, time.Now().Unix())
		}
		e, err := cdeventsv05.NewServiceDeployedEvent()
		if err != nil {
			return nil, "", err
		}
		e.SetSource(source)
		e.SetSubjectId(subjectID)
		e.SetSubjectEnvironment(&cdeventsapi.Reference{Id: environment})
		e.SetSubjectArtifactId(artifact)
		body, err := cdeventsapi.AsJsonBytes(e)
		return body, cdeventsv05.ServiceDeployedEventType.String(), err
	case "service.rolledback":
		e, err := cdeventsv05.NewServiceRolledbackEvent()
		if err != nil {
			return nil, "", err
		}
		e.SetSource(source)
		e.SetSubjectId(subjectID)
		e.SetSubjectEnvironment(&cdeventsapi.Reference{Id: environment})
		e.SetSubjectArtifactId(artifact)
		body, err := cdeventsapi.AsJsonBytes(e)
		return body, cdeventsv05.ServiceRolledbackEventType.String(), err
	case "service.published":
		e, err := cdeventsv05.NewServicePublishedEvent()
		if err != nil {
			return nil, "", err
		}
		e.SetSource(source)
		e.SetSubjectId(subjectID)
		e.SetSubjectEnvironment(&cdeventsapi.Reference{Id: environment})
		body, err := cdeventsapi.AsJsonBytes(e)
		return body, cdeventsv05.ServicePublishedEventType.String(), err
	default:
		return nil, "", fmt.Errorf("unsupported event type %q", event.Type)
	}
}

func normalizeType(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == "", v == "deployed", strings.HasPrefix(v, "dev.cdevents.service.deployed."):
		return "service.deployed"
	case v == "published", strings.HasPrefix(v, "dev.cdevents.service.published."):
		return "service.published"
	case v == "rolledback", strings.HasPrefix(v, "dev.cdevents.service.rolledback."):
		return "service.rolledback"
	default:
		return v
	}
}
